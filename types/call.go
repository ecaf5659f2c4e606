package types

// Call describes who is behind a top-level (or nested) program call.
// Signers are the identities whose signatures the host has already verified.
type Call struct {
	Invoker  Identity
	FeePayer Identity
	// TxSource is the identity that originated the enclosing transaction, nil when the
	// host cannot resolve one.
	TxSource *Identity
	Signers  []Identity
}

// NewCall returns a call signed and paid for by invoker, with no transaction source.
func NewCall(invoker Identity) Call {
	return Call{
		Invoker:  invoker,
		FeePayer: invoker,
		Signers:  []Identity{invoker},
	}
}

// WithTxSource returns a copy of c carrying src as transaction source.
func (c Call) WithTxSource(src Identity) Call {
	c.TxSource = &src
	return c
}

// WithFeePayer returns a copy of c paid for (and co-signed) by payer.
func (c Call) WithFeePayer(payer Identity) Call {
	c.FeePayer = payer
	if !c.SignedBy(payer) {
		c.Signers = append(append([]Identity(nil), c.Signers...), payer)
	}
	return c
}

// SignedBy reports whether id is among the verified signers.
func (c Call) SignedBy(id Identity) bool {
	for _, s := range c.Signers {
		if s == id {
			return true
		}
	}
	return false
}

// ViaProgram returns the call as seen by a program invoked by program on behalf of c:
// the invoker becomes program, payer, source and signers carry over.
func (c Call) ViaProgram(program Identity) Call {
	c.Invoker = program
	c.Signers = append([]Identity(nil), c.Signers...)
	return c
}
