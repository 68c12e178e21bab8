package publish

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// recordEncMode is deterministic so the same record always encodes to the
// same bytes.
var recordEncMode cbor.EncMode

var recordDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	recordEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	recordDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR decoder mode: %v", err))
	}
}

// EncodeRecord encodes rec to CBOR.
func EncodeRecord(rec Record) ([]byte, error) {
	return recordEncMode.Marshal(rec)
}

// DecodeRecord decodes one CBOR record.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := recordDecMode.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func newEncoder(w io.Writer) *cbor.Encoder {
	return recordEncMode.NewEncoder(w)
}

func newDecoder(r io.Reader) *cbor.Decoder {
	return recordDecMode.NewDecoder(r)
}
