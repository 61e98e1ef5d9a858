// Package replies holds the fixed texts shown to chat users.
package replies

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/membo/vtubot/core/catalog"
	"github.com/membo/vtubot/core/users"
)

var (
	UserMenu = strings.Join([]string{
		"1️⃣ Check Balance",
		"2️⃣ Buy Airtime",
		"3️⃣ Buy Data",
		"4️⃣ AI Chat",
		"5️⃣ Help",
	}, "\n")

	AdminMenu = strings.Join([]string{
		"1️⃣ Total Users",
		"2️⃣ Total Transactions",
		"3️⃣ Total Revenue",
		"4️⃣ Broadcast Message",
		"5️⃣ Credit User Wallet",
	}, "\n")

	Help = strings.Join([]string{
		"Send one of:",
		"- register",
		"- login",
		"- menu",
		"- logout",
	}, "\n")
)

const (
	AskFullName      = "Enter Full Name:"
	FullNameTooShort = "Full Name too short. Enter Full Name:"
	AskEmail         = "Enter Email:"
	InvalidEmail     = "Invalid email. Enter Email:"
	EmailExists      = "Email already exists. Send 'login' to continue."
	AskPassword      = "Enter Password:"
	PasswordTooShort = "Password too short (min 6). Enter Password:"
	PasswordTooLong  = "Password too long (max 72 bytes). Enter Password:"
	PhoneRegistered  = "Phone number already registered. Send 'login'."
	BadCredentials   = "Invalid credentials. Send 'login' to try again."
	RegisterOrLogin  = "Send 'register' or 'login'."
	LoggedOut        = "Logged out."
	SessionError     = "Session error. Send 'login'."

	AskAIMessage         = "Send your message for AI:"
	AskRechargePhone     = "Enter phone number to recharge:"
	InvalidRechargePhone = "Invalid phone number. Enter phone number to recharge:"
	AskDataPhone         = "Enter phone number for data:"
	InvalidDataPhone     = "Invalid phone number. Enter phone number for data:"
	AskAmount            = "Enter amount:"
	InvalidAmount        = "Invalid amount. Enter amount:"

	AskBroadcast       = "Enter broadcast message:"
	AskCreditPhone     = "Enter user phone number to credit:"
	InvalidCreditPhone = "Invalid phone. Enter user phone number to credit:"

	ShareContact       = "Share your phone number to use this bot."
	ShareContactButton = "📱 Share phone number"
	ForeignContact     = "Please share your own contact."
	SlowDown           = "Too many messages, please slow down."
)

// ContactLinked confirms a Telegram chat is now bound to phone.
func ContactLinked(phone string) string {
	return fmt.Sprintf("Linked to %s.\n%s", phone, RegisterOrLogin)
}

// MenuFor returns the menu text of a role.
func MenuFor(role users.Role) string {
	if role == users.RoleAdmin {
		return AdminMenu
	}
	return UserMenu
}

// Naira renders an amount the way every reply shows money.
func Naira(d decimal.Decimal) string {
	return "₦" + d.String()
}

func Balance(d decimal.Decimal) string {
	return "Wallet Balance: " + Naira(d)
}

func InsufficientBalance() string {
	return "Insufficient balance.\n" + UserMenu
}

func AirtimeSuccess(n catalog.Network, phone string, amount decimal.Decimal) string {
	return fmt.Sprintf("Airtime purchase successful.\nNetwork: %s\nPhone: %s\nAmount: %s\n\n%s",
		n, phone, Naira(amount), UserMenu)
}

func DataSuccess(n catalog.Network, phone, plan string, amount decimal.Decimal) string {
	return fmt.Sprintf("Data purchase successful.\nNetwork: %s\nPhone: %s\nPlan: %s\nAmount: %s\n\n%s",
		n, phone, plan, Naira(amount), UserMenu)
}

// AIAnswer relays a chat answer followed by the user menu.
func AIAnswer(answer string) string {
	return answer + "\n\n" + UserMenu
}

func TotalUsers(n int64) string {
	return fmt.Sprintf("Total Users: %d", n)
}

func TotalTransactions(n int64) string {
	return fmt.Sprintf("Total Transactions: %d", n)
}

func TotalRevenue(d decimal.Decimal) string {
	return "Total Revenue: " + Naira(d)
}

// BroadcastSent reports delivery counts; the failure line only appears when something failed.
func BroadcastSent(delivered, total, failed int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Broadcast sent.\nDelivered: %d/%d", delivered, total)
	if failed > 0 {
		fmt.Fprintf(&b, "\nFailed: %d", failed)
	}
	b.WriteString("\n\n")
	b.WriteString(AdminMenu)
	return b.String()
}

func UserNotFound() string {
	return "User not found.\n\n" + AdminMenu
}

func WalletCredited(phone string, amount decimal.Decimal) string {
	return fmt.Sprintf("Wallet credited.\nUser: %s\nAmount: %s\n\n%s", phone, Naira(amount), AdminMenu)
}
