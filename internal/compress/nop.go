package compress

// Nop stores content as is. Rows without a compression name decode with it.
type Nop struct{}

func NewNop() Nop {
	return Nop{}
}

func (Nop) Name() string {
	return NameNop
}

func (Nop) Encode(data []byte) ([]byte, error) {
	return data, nil
}

func (Nop) Decode(data []byte) ([]byte, error) {
	return data, nil
}
