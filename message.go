package gcs

import "github.com/codership/gcs/gcstypes"

// Fragment is the elementary transport unit: a slice of one action's bytes,
// tagged so the receiving Assembler can reassemble it (spec §3 "Message").
// Fragments from a single source arrive in order, and one action's
// fragments are contiguous on the wire from that source.
type Fragment = gcstypes.Fragment
