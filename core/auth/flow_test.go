package auth_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/membo/vtubot/core/auth"
	"github.com/membo/vtubot/core/database/databasetest"
	"github.com/membo/vtubot/core/replies"
	"github.com/membo/vtubot/core/session"
	"github.com/membo/vtubot/core/users"
)

const adminPhone = "2348000000001"

type FlowSuite struct {
	suite.Suite
	ctx      context.Context
	sessions *session.Store
	users    *users.Store
	flow     *auth.Flow
}

func TestFlowSuite(t *testing.T) {
	suite.Run(t, new(FlowSuite))
}

func (s *FlowSuite) SetupTest() {
	s.ctx = context.Background()
	db := databasetest.Open(s.T())
	s.sessions = session.NewStore(db)
	s.users = users.NewStore(db)
	s.flow = auth.NewFlow(s.sessions, s.users, auth.NewBcryptHasher(bcrypt.MinCost), "+234 800 000 0001")
}

// send runs one anonymous turn the way the router does.
func (s *FlowSuite) send(identity, msg string) string {
	sess, err := s.sessions.GetOrCreate(s.ctx, identity)
	s.Require().NoError(err)
	s.Require().False(sess.LoggedIn, "send is only for anonymous sessions")
	reply, err := s.flow.Handle(s.ctx, sess, msg)
	s.Require().NoError(err)
	return reply
}

func (s *FlowSuite) session(identity string) *session.Session {
	sess, err := s.sessions.Get(s.ctx, identity)
	s.Require().NoError(err)
	return sess
}

func (s *FlowSuite) register(identity, name, email, password string) string {
	s.Equal(replies.AskFullName, s.send(identity, "register"))
	s.Equal(replies.AskEmail, s.send(identity, name))
	reply := s.send(identity, email)
	if reply != replies.AskPassword {
		return reply
	}
	return s.send(identity, password)
}

func (s *FlowSuite) TestRegistrationRoundTrip() {
	phone := "2348011111111"
	s.Equal(replies.UserMenu, s.register(phone, "Jane Doe", "jane@example.com", "secret1"))

	u, err := s.users.FindByEmail(s.ctx, "jane@example.com")
	s.Require().NoError(err)
	s.Equal(phone, u.PhoneNumber)
	s.Equal("Jane Doe", u.FullName)
	s.True(u.WalletBalance.IsZero())
	s.Equal(users.RoleUser, u.Role)

	sess := s.session(phone)
	s.True(sess.LoggedIn)
	s.Equal(u.ID, sess.UserID)
	s.Equal(session.StateMenu, sess.State)
	s.Equal(session.Blank{}, sess.Form)
}

func (s *FlowSuite) TestRegistrationValidationReprompts() {
	phone := "2348011111112"
	s.send(phone, "REGISTER")
	s.Equal(replies.FullNameTooShort, s.send(phone, "J"))
	s.Equal(session.StateRegisterFullName, s.session(phone).State)

	s.send(phone, "Jo")
	s.Equal(replies.InvalidEmail, s.send(phone, "not-an-email"))
	s.Equal(session.StateRegisterEmail, s.session(phone).State)

	s.send(phone, "Jo@Example.com")
	s.Equal(replies.PasswordTooShort, s.send(phone, "12345"))
	sess := s.session(phone)
	s.Equal(session.StateRegisterPassword, sess.State)
	s.Equal(session.Registration{FullName: "Jo", Email: "jo@example.com"}, sess.Form)
}

func (s *FlowSuite) TestRegistrationRejectsOverlongPassword() {
	phone := "2348011111119"
	reply := s.register(phone, "Jane Doe", "long@example.com", strings.Repeat("a", 73))
	s.Equal(replies.PasswordTooLong, reply)
	s.Equal(session.StateRegisterPassword, s.session(phone).State)
	_, err := s.users.FindByPhone(s.ctx, phone)
	s.ErrorIs(err, users.ErrNotFound)

	s.Equal(replies.UserMenu, s.send(phone, strings.Repeat("a", 72)))
	s.True(s.session(phone).LoggedIn)
}

func (s *FlowSuite) TestDuplicateEmail() {
	s.Equal(replies.UserMenu, s.register("2348011111111", "Jane Doe", "jane@example.com", "secret1"))

	other := "2348022222222"
	s.Equal(replies.EmailExists, s.register(other, "Jane Two", "jane@example.com", "secret2"))
	s.Equal(session.StateIdle, s.session(other).State)

	n, err := s.users.Count(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, n)
}

func (s *FlowSuite) TestDuplicatePhone() {
	phone := "2348011111111"
	s.Require().NoError(s.users.Create(s.ctx, &users.User{FullName: "Old", Email: "old@example.com", PasswordHash: "x", PhoneNumber: phone}))

	s.Equal(replies.PhoneRegistered, s.register(phone, "New", "new@example.com", "secret1"))
	s.Equal(session.StateIdle, s.session(phone).State)
}

func (s *FlowSuite) TestLogin() {
	s.register("2348011111111", "Jane Doe", "jane@example.com", "secret1")

	other := "2348033333333"
	s.Equal(replies.AskEmail, s.send(other, "login"))
	s.Equal(replies.AskPassword, s.send(other, "JANE@example.com"))
	s.Equal(replies.UserMenu, s.send(other, "secret1"))

	sess := s.session(other)
	s.True(sess.LoggedIn)
	s.Equal(users.RoleUser, sess.Role)
}

func (s *FlowSuite) TestLoginFailuresAreIndistinguishable() {
	s.register("2348011111111", "Jane Doe", "jane@example.com", "secret1")

	for _, email := range []string{"jane@example.com", "ghost@example.com"} {
		phone := "2348044444444"
		s.send(phone, "login")
		s.send(phone, email)
		s.Equal(replies.BadCredentials, s.send(phone, "wrong-password"))
		sess := s.session(phone)
		s.Equal(session.StateIdle, sess.State)
		s.False(sess.LoggedIn)
	}
}

func (s *FlowSuite) TestLoginInvalidEmail() {
	phone := "2348055555555"
	s.send(phone, "login")
	s.Equal(replies.InvalidEmail, s.send(phone, "jane"))
	s.Equal(session.StateLoginEmail, s.session(phone).State)
}

func (s *FlowSuite) TestUnknownInput() {
	s.Equal(replies.RegisterOrLogin, s.send("2348066666666", "hello"))
	s.Equal(session.StateIdle, s.session("2348066666666").State)
}

func (s *FlowSuite) TestRegisterRestartsForm() {
	phone := "2348077777777"
	s.send(phone, "register")
	s.send(phone, "Jane")
	s.Equal(replies.AskEmail, s.send(phone, "login"))
	sess := s.session(phone)
	s.Equal(session.StateLoginEmail, sess.State)
	s.Equal(session.Blank{}, sess.Form)
}

func (s *FlowSuite) TestProvisionAdmin() {
	s.True(s.flow.IsAdminIdentity(adminPhone))
	s.False(s.flow.IsAdminIdentity("2348011111111"))

	_, err := s.sessions.GetOrCreate(s.ctx, adminPhone)
	s.Require().NoError(err)

	u, err := s.flow.ProvisionAdmin(s.ctx, adminPhone)
	s.Require().NoError(err)
	s.Equal(users.RoleAdmin, u.Role)
	s.Equal("admin_"+adminPhone+"@local", u.Email)
	s.True(u.WalletBalance.IsZero())

	sess := s.session(adminPhone)
	s.True(sess.LoggedIn)
	s.Equal(users.RoleAdmin, sess.Role)
	s.Equal(session.StateAdminMenu, sess.State)

	// second provisioning reuses the account
	again, err := s.flow.ProvisionAdmin(s.ctx, adminPhone)
	s.Require().NoError(err)
	s.Equal(u.ID, again.ID)
	n, err := s.users.Count(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, n)
}

func TestBcryptHasher(t *testing.T) {
	h := auth.NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatal(err)
	}
	if !h.Compare(hash, "secret1") || h.Compare(hash, "secret2") {
		t.Fatal("bcrypt compare mismatch")
	}
	if auth.NewBcryptHasher(1).Cost != bcrypt.DefaultCost {
		t.Fatal("out of range cost must fall back to default")
	}
}
