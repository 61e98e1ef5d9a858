// Package catalog holds the supported mobile networks and their fixed data plans.
package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Network is a mobile network operator.
type Network string

const (
	MTN     Network = "MTN"
	GLO     Network = "GLO"
	Airtel  Network = "AIRTEL"
	NineMob Network = "9MOBILE"
)

// Networks lists operators in menu order; selector "1" is the first entry.
var Networks = []Network{MTN, GLO, Airtel, NineMob}

// Valid reports whether n is a known operator.
func (n Network) Valid() bool {
	for _, known := range Networks {
		if n == known {
			return true
		}
	}
	return false
}

// Plan is one purchasable data bundle.
type Plan struct {
	Code   string
	Label  string
	Amount decimal.Decimal
}

var plans = map[Network][]Plan{
	MTN: {
		{Code: "1", Label: "500MB - ₦150", Amount: decimal.NewFromInt(150)},
		{Code: "2", Label: "1GB - ₦300", Amount: decimal.NewFromInt(300)},
		{Code: "3", Label: "2GB - ₦600", Amount: decimal.NewFromInt(600)},
	},
	GLO: {
		{Code: "1", Label: "1GB - ₦250", Amount: decimal.NewFromInt(250)},
		{Code: "2", Label: "2GB - ₦500", Amount: decimal.NewFromInt(500)},
	},
	Airtel: {
		{Code: "1", Label: "1GB - ₦300", Amount: decimal.NewFromInt(300)},
		{Code: "2", Label: "2GB - ₦600", Amount: decimal.NewFromInt(600)},
	},
	NineMob: {
		{Code: "1", Label: "1GB - ₦350", Amount: decimal.NewFromInt(350)},
	},
}

// PickNetwork maps a menu selector ("1".."4") to a network.
func PickNetwork(selector string) (Network, bool) {
	switch strings.TrimSpace(selector) {
	case "1":
		return MTN, true
	case "2":
		return GLO, true
	case "3":
		return Airtel, true
	case "4":
		return NineMob, true
	}
	return "", false
}

// Plans returns the ordered plan list of a network. The slice must not be modified.
func Plans(n Network) []Plan {
	return plans[n]
}

// FindPlan looks a plan up by its selector code within a network.
func FindPlan(n Network, code string) (Plan, bool) {
	code = strings.TrimSpace(code)
	for _, p := range plans[n] {
		if p.Code == code {
			return p, true
		}
	}
	return Plan{}, false
}

// NetworkMenu is the network selection prompt.
func NetworkMenu() string {
	lines := []string{"Choose network:"}
	for i, n := range Networks {
		lines = append(lines, fmt.Sprintf("%d) %s", i+1, n))
	}
	return strings.Join(lines, "\n")
}

// PlanMenu lists the plans of a network.
func PlanMenu(n Network) string {
	lines := []string{fmt.Sprintf("Data plans for %s:", n)}
	for _, p := range plans[n] {
		lines = append(lines, fmt.Sprintf("%s) %s", p.Code, p.Label))
	}
	lines = append(lines, "Reply with plan number")
	return strings.Join(lines, "\n")
}
