package envelope

import "github.com/pkg/errors"

var (
	// ErrSlotOccupied is returned by the Stamp* helpers when the metadata
	// slot being stamped is already populated.
	ErrSlotOccupied = errors.New("envelope: metadata slot already populated")
	// ErrMalformed is returned by Unmarshal for any structurally invalid
	// wire record.
	ErrMalformed = errors.New("envelope: malformed wire record")
)

// StampFragment sets Metadata.FragmentInfo, refusing to overwrite.
func (e *Envelope) StampFragment(fi FragmentInfo) error {
	if e.Metadata.FragmentInfo != nil {
		return errors.WithStack(ErrSlotOccupied)
	}
	e.Metadata.FragmentInfo = &fi
	return nil
}

// StampFEC sets Metadata.FECInfo, refusing to overwrite.
func (e *Envelope) StampFEC(fi FECInfo) error {
	if e.Metadata.FECInfo != nil {
		return errors.WithStack(ErrSlotOccupied)
	}
	e.Metadata.FECInfo = &fi
	return nil
}

// StampCrypto sets Metadata.CryptoInfo, refusing to overwrite.
func (e *Envelope) StampCrypto(ci CryptoInfo) error {
	if e.Metadata.CryptoInfo != nil {
		return errors.WithStack(ErrSlotOccupied)
	}
	e.Metadata.CryptoInfo = &ci
	return nil
}
