package controller

import (
	"math/big"
	"net/http"
	"strconv"
)

// parseBlock reads the required block query parameter.
func parseBlock(r *http.Request) (uint64, error) {
	v := r.URL.Query().Get("block")
	if v == "" {
		return 0, errMissingBlock
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == 0 {
		return 0, errInvalidBlock
	}
	return n, nil
}

// parseFloor reads the optional floor query parameter, a non-negative raw
// integer amount. Nil means "any positive balance".
func parseFloor(r *http.Request) (*big.Int, error) {
	v := r.URL.Query().Get("floor")
	if v == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, errInvalidFloor
	}
	return n, nil
}

var (
	errMissingBlock = &parseError{msg: "missing block parameter"}
	errInvalidBlock = &parseError{msg: "invalid block, must be a positive integer"}
	errInvalidFloor = &parseError{msg: "invalid floor, must be a non-negative integer amount"}
)

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }
