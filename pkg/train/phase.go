package train

// The two-phase training procedure is an explicit state machine:
//
//	HEAD_ONLY -> FINE_TUNE -> DONE
//
// In HEAD_ONLY only the output layer of the head is updated. FINE_TUNE
// unfreezes the hidden layer as well, at a lower learning rate. DONE is
// reached at the epoch budget or when early stopping fires.
type Phase int

const (
	PhaseHeadOnly Phase = iota
	PhaseFineTune
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseHeadOnly:
		return "HEAD_ONLY"
	case PhaseFineTune:
		return "FINE_TUNE"
	case PhaseDone:
		return "DONE"
	}
	return "UNKNOWN"
}
