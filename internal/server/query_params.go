package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/guesthouse/internal/pricing/domain"
)

const dateOnlyLayout = "2006-01-02"

func parseSnowflakeID(value string) (snowflake.ID, bool) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}

// pathID reads the :id path parameter, aborting with a validation error when
// it is not a snowflake.
func pathID(c *gin.Context) (snowflake.ID, bool) {
	id, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, bool) {
	if strings.TrimSpace(value) == "" {
		return nil, true
	}
	id, ok := parseSnowflakeID(value)
	if !ok {
		return nil, false
	}
	return &id, true
}

func parseDate(value string) (time.Time, bool) {
	parsed, err := time.Parse(dateOnlyLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func parseOptionalDate(value *string) (*time.Time, bool) {
	if value == nil {
		return nil, true
	}
	parsed, ok := parseDate(*value)
	if !ok {
		return nil, false
	}
	return &parsed, true
}

// amountCents accepts either minor units or a decimal amount such as "31.50".
// Minor units win when both are present.
func amountCents(cents *int64, amount string) (int64, error) {
	if cents != nil {
		return *cents, nil
	}
	if strings.TrimSpace(amount) == "" {
		return 0, nil
	}
	return pricingdomain.ParseAmount(strings.TrimSpace(amount))
}

// percentBasisPoints converts a decimal percentage such as "12.5".
func percentBasisPoints(percent string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(percent))
	if err != nil {
		return 0, pricingdomain.ErrInvalidAmount
	}
	return pricingdomain.PercentToBasisPoints(d), nil
}

// queryInt returns 0 for a missing parameter and aborts on a malformed one.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		AbortWithError(c, newValidationError(name, "invalid_number", "expected a non-negative integer"))
		return 0, false
	}
	return value, true
}

func queryBool(c *gin.Context, name string) (bool, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return false, true
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		AbortWithError(c, newValidationError(name, "invalid_boolean", "expected true or false"))
		return false, false
	}
	return value, true
}
