package commands

import (
	"strconv"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func requireID(field, raw string) (int64, error) {
	id, ok := parseID(raw)
	if !ok {
		return 0, ferrors.ValidationError(field+" must be a positive integer").
			WithContext("value", raw).Build()
	}
	return id, nil
}
