package storage

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
}

// encodePower packs a spectrum into a zstd-compressed little-endian float32
// blob. Power values sit well within float32 range, and halving the frame
// keeps long sessions manageable on disk.
func encodePower(power []float64) []byte {
	raw := make([]byte, len(power)*4)
	for i, v := range power {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(float32(v)))
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
}

func decodePower(blob []byte) ([]float64, error) {
	raw, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing power: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("power blob of %d bytes is not a whole number of bins", len(raw))
	}

	power := make([]float64, len(raw)/4)
	for i := range power {
		power[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	return power, nil
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError is safe to defer before Commit: a rollback of an
// already committed transaction is not an error.
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}
