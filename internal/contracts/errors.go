package contracts

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrAttestationExists is wrapped into errors caused by the
// AttestationAlreadyExists() revert.
var ErrAttestationExists = errors.New("attestation already exists on-chain")

func attestationExistsSelector() []byte {
	parsed, err := attestationABI.get()
	if err != nil {
		return nil
	}
	return parsed.Errors["AttestationAlreadyExists"].ID.Bytes()[:4]
}

// classifyRevert tags err with ErrAttestationExists when the revert data or
// message identifies a duplicate attestation.
func classifyRevert(err error) error {
	if err == nil {
		return nil
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data := revertData(dataErr.ErrorData()); len(data) >= 4 {
			if sel := attestationExistsSelector(); sel != nil && bytes.Equal(data[:4], sel) {
				return fmt.Errorf("%w: %w", ErrAttestationExists, err)
			}
		}
	}
	if strings.Contains(err.Error(), "AttestationAlreadyExists") {
		return fmt.Errorf("%w: %w", ErrAttestationExists, err)
	}
	return err
}

func revertData(value interface{}) []byte {
	switch v := value.(type) {
	case string:
		data, err := hexutil.Decode(v)
		if err != nil {
			return nil
		}
		return data
	case []byte:
		return v
	default:
		return nil
	}
}
