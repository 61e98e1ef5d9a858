package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/membo/vtubot/core/catalog"
	"github.com/membo/vtubot/core/database/databasetest"
	"github.com/membo/vtubot/core/users"
)

type StoreSuite struct {
	suite.Suite
	ctx    context.Context
	db     *sqlx.DB
	store  *Store
	userID string
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = databasetest.Open(s.T())
	s.store = NewStore(s.db)

	u := &users.User{FullName: "Jane", Email: "jane@example.com", PasswordHash: "x", PhoneNumber: "2348011111111"}
	s.Require().NoError(users.NewStore(s.db).Create(s.ctx, u))
	s.userID = u.ID
}

func (s *StoreSuite) TestGetOrCreateStartsIdle() {
	sess, err := s.store.GetOrCreate(s.ctx, "2348011111111")
	s.Require().NoError(err)
	s.Equal(StateIdle, sess.State)
	s.Equal(Blank{}, sess.Form)
	s.False(sess.LoggedIn)
	s.Empty(sess.UserID)

	again, err := s.store.GetOrCreate(s.ctx, "2348011111111")
	s.Require().NoError(err)
	s.Equal(sess.Identity, again.Identity)
}

func (s *StoreSuite) TestGetOrCreateConcurrentNoDuplicates() {
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.GetOrCreate(s.ctx, "2348022222222")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	var n int
	s.Require().NoError(s.db.Get(&n, `SELECT COUNT(*) FROM sessions WHERE phone_number = '2348022222222'`))
	s.Equal(1, n)
}

func (s *StoreSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "nobody")
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreSuite) TestSetStateReplacesOrKeepsForm() {
	id := "2348033333333"
	_, err := s.store.GetOrCreate(s.ctx, id)
	s.Require().NoError(err)

	s.Require().NoError(s.store.SetState(s.ctx, id, StateBuyAirtimePhone, Airtime{Network: catalog.MTN}))
	sess, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(Airtime{Network: catalog.MTN}, sess.Form)

	s.Require().NoError(s.store.SetState(s.ctx, id, StateBuyAirtimeAmount, Airtime{Network: catalog.MTN, Recipient: "08012345678"}))
	// nil form keeps the scratch data
	s.Require().NoError(s.store.SetState(s.ctx, id, StateBuyAirtimeAmount, nil))
	sess, err = s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(Airtime{Network: catalog.MTN, Recipient: "08012345678"}, sess.Form)

	s.Require().NoError(s.store.SetState(s.ctx, id, StateMenu, Blank{}))
	sess, err = s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(StateMenu, sess.State)
	s.Equal(Blank{}, sess.Form)
}

func (s *StoreSuite) TestSetStateDataFormRoundTrip() {
	id := "2348044444444"
	_, err := s.store.GetOrCreate(s.ctx, id)
	s.Require().NoError(err)

	form := Data{Network: catalog.NineMob, PlanCode: "1", PlanLabel: "1GB - ₦350", PlanAmount: decimal.NewFromInt(350)}
	s.Require().NoError(s.store.SetState(s.ctx, id, StateBuyDataPhone, form))

	sess, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	got, ok := sess.Form.(Data)
	s.Require().True(ok)
	s.Equal(catalog.NineMob, got.Network)
	s.Equal("1GB - ₦350", got.PlanLabel)
	s.True(got.PlanAmount.Equal(decimal.NewFromInt(350)))
}

func (s *StoreSuite) TestSetStateRejectsInvalid() {
	id := "2348055555555"
	_, err := s.store.GetOrCreate(s.ctx, id)
	s.Require().NoError(err)

	s.ErrorIs(s.store.SetState(s.ctx, id, State("DANCING"), nil), ErrInvalidState)
	s.ErrorIs(s.store.SetState(s.ctx, id, StateBuyDataPlan, Credit{TargetPhone: "1"}), ErrFormMismatch)
	s.ErrorIs(s.store.SetState(s.ctx, "nobody", StateMenu, nil), ErrNotFound)
}

func (s *StoreSuite) TestLoginLogout() {
	id := "2348011111111"
	_, err := s.store.GetOrCreate(s.ctx, id)
	s.Require().NoError(err)
	s.Require().NoError(s.store.SetState(s.ctx, id, StateLoginPassword, Login{Email: "jane@example.com"}))

	s.Require().NoError(s.store.SetLoggedIn(s.ctx, id, s.userID, users.RoleUser))
	sess, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.True(sess.LoggedIn)
	s.Equal(s.userID, sess.UserID)
	s.Equal(users.RoleUser, sess.Role)
	s.Equal(StateMenu, sess.State)
	s.Equal(Blank{}, sess.Form)

	s.Require().NoError(s.store.Logout(s.ctx, id))
	sess, err = s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.False(sess.LoggedIn)
	s.Empty(sess.UserID)
	s.Empty(sess.Role)
	s.Equal(StateIdle, sess.State)

	s.ErrorIs(s.store.Logout(s.ctx, "nobody"), ErrNotFound)
}

func (s *StoreSuite) TestAdminLoginLandsOnAdminMenu() {
	id := "2348066666666"
	_, err := s.store.GetOrCreate(s.ctx, id)
	s.Require().NoError(err)
	s.Require().NoError(s.store.SetLoggedIn(s.ctx, id, s.userID, users.RoleAdmin))

	sess, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(StateAdminMenu, sess.State)
}

func (s *StoreSuite) TestResetStale() {
	anon, user := "2348077777777", "2348011111111"
	for _, id := range []string{anon, user} {
		_, err := s.store.GetOrCreate(s.ctx, id)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.SetState(s.ctx, anon, StateRegisterEmail, Registration{FullName: "Ann"}))
	s.Require().NoError(s.store.SetLoggedIn(s.ctx, user, s.userID, users.RoleUser))
	s.Require().NoError(s.store.SetState(s.ctx, user, StateBuyAirtimePhone, Airtime{Network: catalog.GLO}))

	ids, err := s.store.Stale(s.ctx, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Empty(ids)
	ok, err := s.store.ResetStale(s.ctx, anon, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.False(ok)

	before := time.Now().Add(time.Minute)
	ids, err = s.store.Stale(s.ctx, before)
	s.Require().NoError(err)
	s.ElementsMatch([]string{anon, user}, ids)
	for _, id := range ids {
		ok, err := s.store.ResetStale(s.ctx, id, before)
		s.Require().NoError(err)
		s.True(ok)
	}

	// A second pass finds nothing left to reset.
	ok, err = s.store.ResetStale(s.ctx, anon, before)
	s.Require().NoError(err)
	s.False(ok)

	sess, err := s.store.Get(s.ctx, anon)
	s.Require().NoError(err)
	s.Equal(StateIdle, sess.State)
	s.Equal(Blank{}, sess.Form)

	sess, err = s.store.Get(s.ctx, user)
	s.Require().NoError(err)
	s.Equal(StateMenu, sess.State)
	s.True(sess.LoggedIn)
}

func TestStateEnumeration(t *testing.T) {
	assert.Len(t, AllStates, 18)
	for _, st := range AllStates {
		assert.True(t, st.Valid(), st)
	}
	assert.False(t, State("BALANCE").Valid())
	assert.Equal(t, StateAdminMenu, MenuFor(users.RoleAdmin))
	assert.Equal(t, StateMenu, MenuFor(users.RoleUser))
}

func TestDecodeFormSelectsShapeByState(t *testing.T) {
	f, err := decodeForm(StateAdminCreditAmount, `{"userPhone":"08012345678"}`)
	require.NoError(t, err)
	assert.Equal(t, Credit{TargetPhone: "08012345678"}, f)

	f, err = decodeForm(StateMenu, `{"userPhone":"08012345678"}`)
	require.NoError(t, err)
	assert.Equal(t, Blank{}, f)

	_, err = decodeForm(StateLoginPassword, `{not json`)
	assert.Error(t, err)
}
