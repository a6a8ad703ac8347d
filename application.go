package balance

import (
	"errors"
	"fmt"

	"github.com/status-im/mifare-balance-go/types"
)

var (
	// DirectoryKey reads the application directory.
	DirectoryKey = types.KeyPair{Key: types.MADKeyA, Type: types.KeyA}
	// ApplicationReadKey reads the NFC Forum sectors.
	ApplicationReadKey = types.KeyPair{Key: types.NFCForumKey, Type: types.KeyA}
	// ApplicationWriteKey writes the NFC Forum sectors.
	ApplicationWriteKey = types.KeyPair{Key: types.NFCForumKey, Type: types.KeyB}
)

// PaymentApplication is the directory entry of the sectors holding the balance record.
var PaymentApplication = types.NFCForumAID

// ReadDirectory reads the application directory of the token.
// Directory errors wrap ErrNoApplication.
func ReadDirectory(t Token) (*types.MAD, error) {
	sector0, gpb, err := readDirectorySector(t, types.MADSector, 1, 2)
	if err != nil {
		return nil, err
	}

	var sector16 []byte
	if version, err := types.MADVersion(gpb); err == nil && version == 2 {
		sector16, _, err = readDirectorySector(t, types.MAD2Sector, 0, 2)
		if err != nil {
			return nil, err
		}
	}

	mad, err := types.ParseMAD(gpb, sector0, sector16)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoApplication, err)
	}

	return mad, nil
}

// readDirectorySector returns blocks first..last of the sector and the
// general purpose byte of its trailer.
func readDirectorySector(t Token, sector types.Sector, first, last int) ([]byte, byte, error) {
	trailer := types.SectorLastBlock(sector)
	if err := authenticate(t, trailer, DirectoryKey); err != nil {
		if isAuthRejected(err) {
			return nil, 0, fmt.Errorf("%w: %w: sector %s: %w", ErrNoApplication, types.ErrNoMAD, sector, err)
		}
		return nil, 0, err
	}

	base := types.SectorFirstBlock(sector)
	var data []byte
	for i := first; i <= last; i++ {
		block, err := readBlock(t, base+types.Block(i))
		if err != nil {
			return nil, 0, err
		}
		data = append(data, block...)
	}

	raw, err := readBlock(t, trailer)
	if err != nil {
		return nil, 0, err
	}

	tr, err := types.ParseTrailer(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrNoApplication, err)
	}

	return data, tr.GPB, nil
}

// ReadApplication concatenates the data blocks of every sector the directory
// allocates to aid.
func ReadApplication(t Token, mad *types.MAD, aid types.AID, kp types.KeyPair) ([]byte, error) {
	sectors := mad.ApplicationSectors(aid)
	if len(sectors) == 0 {
		return nil, fmt.Errorf("%w: aid %s not in directory", ErrNoApplication, aid)
	}

	var data []byte
	for _, s := range sectors {
		if err := authenticate(t, types.SectorLastBlock(s), kp); err != nil {
			if isAuthRejected(err) {
				return nil, fmt.Errorf("%w: sector %s: %w", ErrNoApplication, s, err)
			}
			return nil, err
		}

		for _, b := range types.SectorDataBlocks(s) {
			block, err := readBlock(t, b)
			if err != nil {
				return nil, err
			}
			data = append(data, block...)
		}
	}

	return data, nil
}

// ReadApplicationRecord reads the first TLV block of the application.
func ReadApplicationRecord(t Token, mad *types.MAD, aid types.AID, kp types.KeyPair) (*types.TLV, error) {
	data, err := ReadApplication(t, mad, aid, kp)
	if err != nil {
		return nil, err
	}

	return types.ParseTLV(data)
}

// RecordPayload returns the NDEF message carried by tlv. The first TLV
// decides: a Null or Terminator block is not skipped.
func RecordPayload(tlv *types.TLV) ([]byte, error) {
	switch tlv.Type {
	case types.TLVNDEFMessage:
		return tlv.Value, nil
	case types.TLVNull:
		return nil, ErrEmptyApplication
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTLV, tlv.Type)
	}
}

// ReadBalanceRecord reads and decodes the balance record of the token.
func ReadBalanceRecord(t Token) (*types.BalanceRecord, error) {
	mad, err := ReadDirectory(t)
	if err != nil {
		return nil, err
	}

	return readBalanceRecord(t, mad)
}

func readBalanceRecord(t Token, mad *types.MAD) (*types.BalanceRecord, error) {
	tlv, err := ReadApplicationRecord(t, mad, PaymentApplication, ApplicationReadKey)
	if err != nil {
		return nil, err
	}

	payload, err := RecordPayload(tlv)
	if err != nil {
		return nil, err
	}

	return types.ParseBalanceRecord(payload)
}

// WriteBalanceRecord commits record to the token. A token without a
// directory is provisioned first.
func WriteBalanceRecord(t Token, record *types.BalanceRecord, onKey KeyObserver) error {
	payload, err := record.Serialize()
	if err != nil {
		return err
	}

	stream, err := types.NDEFMessageStream(payload)
	if err != nil {
		return err
	}

	mad, err := ReadDirectory(t)
	if errors.Is(err, types.ErrNoMAD) {
		logger.Info("provisioning blank token", "uid", t.UID())
		return Provision(t, stream, onKey)
	}
	if err != nil {
		return err
	}

	return WriteApplication(t, mad, PaymentApplication, stream, onKey)
}

// WriteApplication writes stream, zero padded to whole blocks, at the start
// of the application. Sectors refusing the write key fall back to key recovery.
func WriteApplication(t Token, mad *types.MAD, aid types.AID, stream []byte, onKey KeyObserver) error {
	sectors := mad.ApplicationSectors(aid)
	if len(sectors) == 0 {
		return fmt.Errorf("%w: aid %s not in directory", ErrNoApplication, aid)
	}

	capacity := 0
	for _, s := range sectors {
		capacity += len(types.SectorDataBlocks(s)) * types.BlockSize
	}
	if len(stream) > capacity {
		return fmt.Errorf("%w: %d bytes do not fit in %d", ErrNoApplication, len(stream), capacity)
	}

	remaining := stream
	for _, s := range sectors {
		if len(remaining) == 0 {
			break
		}

		if err := authenticateForWrite(t, s, ApplicationWriteKey, onKey); err != nil {
			return err
		}

		var err error
		if remaining, err = writeDataBlocks(t, s, remaining); err != nil {
			return err
		}
	}

	return nil
}

func authenticateForWrite(t Token, s types.Sector, kp types.KeyPair, onKey KeyObserver) error {
	err := authenticate(t, types.SectorLastBlock(s), kp)
	if !isAuthRejected(err) {
		return err
	}

	recovered, err := RecoverKey(t, s)
	if onKey != nil {
		onKey(s, recovered, err)
	}

	return err
}

// writeDataBlocks writes the head of data to the sector and returns the rest.
func writeDataBlocks(t Token, s types.Sector, data []byte) ([]byte, error) {
	for _, b := range types.SectorDataBlocks(s) {
		if len(data) == 0 {
			break
		}

		block := make([]byte, types.BlockSize)
		n := copy(block, data)
		data = data[n:]

		if err := writeBlock(t, b, block); err != nil {
			return nil, err
		}
	}

	return data, nil
}

// Provision writes a fresh directory allocating the payment application, the
// application trailers and stream. Write access to every sector comes from
// key recovery.
func Provision(t Token, stream []byte, onKey KeyObserver) error {
	mad, err := types.NewMAD(t.Type())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedTag, err)
	}

	sectors, err := mad.Allocate(PaymentApplication, len(stream))
	if err != nil {
		return err
	}

	recoverSector := func(s types.Sector) error {
		kp, err := RecoverKey(t, s)
		if onKey != nil {
			onKey(s, kp, err)
		}
		return err
	}

	remaining := stream
	for _, s := range sectors {
		if err := recoverSector(s); err != nil {
			return err
		}

		if remaining, err = writeDataBlocks(t, s, remaining); err != nil {
			return err
		}

		tr := &types.Trailer{
			KeyA:   types.NFCForumKey,
			Access: types.NFCForumAccessBits,
			GPB:    types.NFCForumGPB,
			KeyB:   types.NFCForumKey,
		}
		if err := writeBlock(t, types.SectorLastBlock(s), tr.Serialize()); err != nil {
			return err
		}
	}

	directory := map[types.Sector][]byte{
		types.MADSector:  mad.Sector0(),
		types.MAD2Sector: mad.Sector16(),
	}
	for _, s := range mad.DirectorySectors() {
		if err := recoverSector(s); err != nil {
			return err
		}

		first := types.SectorFirstBlock(s)
		if s == types.MADSector {
			first++
		}
		data := directory[s]
		for i := 0; i*types.BlockSize < len(data); i++ {
			if err := writeBlock(t, first+types.Block(i), data[i*types.BlockSize:(i+1)*types.BlockSize]); err != nil {
				return err
			}
		}

		tr := &types.Trailer{
			KeyA:   types.MADKeyA,
			Access: types.MADAccessBits,
			GPB:    mad.GPB(),
			KeyB:   types.NFCForumKey,
		}
		if err := writeBlock(t, types.SectorLastBlock(s), tr.Serialize()); err != nil {
			return err
		}
	}

	logger.Debug("token provisioned", "uid", t.UID(), "sectors", len(sectors))
	return nil
}
