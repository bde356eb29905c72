package mcpserver

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"

	"ore-autominer/internal/app/control"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

func clampPagination(limit, offset, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// decimalArg reads an amount given either as a decimal string or a JSON
// number. A missing argument yields nil.
func decimalArg(request mcp.CallToolRequest, key string) (*decimal.Decimal, error) {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	var (
		d   decimal.Decimal
		err error
	)
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		d, err = decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		d = decimal.NewFromFloat(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	default:
		err = fmt.Errorf("unsupported type %T", raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", control.ErrInvalidRequest, key, err)
	}
	return &d, nil
}

func requiredDecimal(request mcp.CallToolRequest, key string) (decimal.Decimal, error) {
	d, err := decimalArg(request, key)
	if err != nil {
		return decimal.Zero, err
	}
	if d == nil {
		return decimal.Zero, fmt.Errorf("%w: %s is required", control.ErrInvalidRequest, key)
	}
	return *d, nil
}
