package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"zerosum_client/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrRateLimited is the transport asking us to slow down.
	ErrRateLimited = errors.New("rpc rate limited")
	// ErrNotVisible means the contract rejected a viewer-scoped call for a
	// non-participant. It is "no data for this viewer", not "no such game".
	ErrNotVisible = errors.New("not visible to viewer")
	// ErrGameNotFound means the game id does not exist on chain.
	ErrGameNotFound = errors.New("game not found")
	// ErrNoWallet is returned by every mutator when no signer is configured.
	ErrNoWallet = errors.New("no wallet connected")
	// ErrInvalidMove is the local legality check failing before submission.
	ErrInvalidMove = domain.ErrInvalidMove
	// ErrNotYourTurn rejects a move submitted while another player is to move.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrTxTimeout means the receipt did not arrive within the confirm timeout.
	ErrTxTimeout = errors.New("transaction confirmation timed out")
	// ErrTxReverted means the transaction was mined with a failed status or
	// rejected during gas estimation.
	ErrTxReverted = errors.New("transaction reverted")
)

// rate-limit JSON-RPC error codes used by common providers
const (
	codeLimitExceeded = -32005
	codeTooManyReqs   = -32029
)

// IsRateLimited reports whether err carries a rate-limit signal.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	var httpErrPtr *rpc.HTTPError
	if errors.As(err, &httpErrPtr) && httpErrPtr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeLimitExceeded, codeTooManyReqs:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// IsNotVisible reports the out-of-range style rejection the contract gives
// non-participants on viewer-scoped calls.
func IsNotVisible(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotVisible) {
		return true
	}
	msg := strings.ToLower(errorText(err))
	return strings.Contains(msg, "out of range") ||
		strings.Contains(msg, "out-of-bounds") ||
		strings.Contains(msg, "not a player") ||
		strings.Contains(msg, "not in game")
}

// IsNotFound reports a revert meaning the game id does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrGameNotFound) {
		return true
	}
	msg := strings.ToLower(errorText(err))
	return strings.Contains(msg, "game does not exist") ||
		strings.Contains(msg, "game not found") ||
		strings.Contains(msg, "invalid game")
}

// RevertReason extracts the contract's revert string, or "" if there is none.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := unpackRevertData(dataErr.ErrorData()); ok {
			return reason
		}
	}

	msg := err.Error()
	const marker = "execution reverted:"
	if i := strings.Index(msg, marker); i >= 0 {
		return strings.TrimSpace(msg[i+len(marker):])
	}
	return ""
}

func unpackRevertData(data interface{}) (string, bool) {
	var raw []byte
	switch d := data.(type) {
	case string:
		b, err := hexutil.Decode(d)
		if err != nil {
			return "", false
		}
		raw = b
	case []byte:
		raw = d
	default:
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}
	return reason, true
}

// errorText is the error message plus any decoded revert reason.
func errorText(err error) string {
	if r := RevertReason(err); r != "" {
		return err.Error() + " " + r
	}
	return err.Error()
}

// Classify maps a transport or contract error onto the package sentinels.
// Errors that match none are returned unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTxTimeout, err)
	case IsRateLimited(err):
		if errors.Is(err, ErrRateLimited) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case IsNotFound(err):
		if errors.Is(err, ErrGameNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrGameNotFound, err)
	case IsNotVisible(err):
		if errors.Is(err, ErrNotVisible) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrNotVisible, err)
	case RevertReason(err) != "":
		return fmt.Errorf("%w: %s", ErrTxReverted, RevertReason(err))
	default:
		return err
	}
}
