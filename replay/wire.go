package replay

import (
	"encoding/json"
	"io"
)

func Decode(r io.Reader) (Tape, error) {
	var t Tape
	dec := json.NewDecoder(r)
	if err := dec.Decode(&t); err != nil {
		return Tape{}, headerError("invalid_tape", "%v", err)
	}
	return t, nil
}

func Encode(w io.Writer, t Tape) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}
