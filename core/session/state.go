package session

import "github.com/membo/vtubot/core/users"

// State is the position of an identity in the conversation.
type State string

const (
	StateIdle State = "IDLE"

	StateRegisterFullName State = "REGISTER_FULLNAME"
	StateRegisterEmail    State = "REGISTER_EMAIL"
	StateRegisterPassword State = "REGISTER_PASSWORD"
	StateLoginEmail       State = "LOGIN_EMAIL"
	StateLoginPassword    State = "LOGIN_PASSWORD"

	StateMenu State = "MENU"

	StateBuyAirtimeNetwork State = "BUY_AIRTIME_NETWORK"
	StateBuyAirtimePhone   State = "BUY_AIRTIME_PHONE"
	StateBuyAirtimeAmount  State = "BUY_AIRTIME_AMOUNT"
	StateBuyDataNetwork    State = "BUY_DATA_NETWORK"
	StateBuyDataPlan       State = "BUY_DATA_PLAN"
	StateBuyDataPhone      State = "BUY_DATA_PHONE"
	StateAIChat            State = "AI_CHAT"

	StateAdminMenu         State = "ADMIN_MENU"
	StateAdminBroadcast    State = "ADMIN_BROADCAST"
	StateAdminCreditPhone  State = "ADMIN_CREDIT_PHONE"
	StateAdminCreditAmount State = "ADMIN_CREDIT_AMOUNT"
)

// AllStates lists every state in declaration order.
var AllStates = []State{
	StateIdle,
	StateRegisterFullName, StateRegisterEmail, StateRegisterPassword,
	StateLoginEmail, StateLoginPassword,
	StateMenu,
	StateBuyAirtimeNetwork, StateBuyAirtimePhone, StateBuyAirtimeAmount,
	StateBuyDataNetwork, StateBuyDataPlan, StateBuyDataPhone,
	StateAIChat,
	StateAdminMenu, StateAdminBroadcast, StateAdminCreditPhone, StateAdminCreditAmount,
}

// Valid reports whether s belongs to the closed enumeration.
func (s State) Valid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// Resting reports whether s waits for a top-level command rather than a form field.
func (s State) Resting() bool {
	return s == StateIdle || s == StateMenu || s == StateAdminMenu
}

// MenuFor returns the home state of a role.
func MenuFor(role users.Role) State {
	if role == users.RoleAdmin {
		return StateAdminMenu
	}
	return StateMenu
}
