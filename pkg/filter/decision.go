package filter

// decide implements the match decision table: whether a transaction matches
// a monitor given which condition kinds the monitor defines (mE, mF, mT)
// and which kinds actually matched for this transaction (e, f, t).
func decide(mE, mF, mT bool, e, f, t bool) bool {
	switch {
	case !mE && !mF && !mT:
		return true
	case !mE && !mF && mT:
		return t
	case (mE || mF) && !mT:
		return e || f
	default: // (mE || mF) && mT
		return (e || f) && t
	}
}
