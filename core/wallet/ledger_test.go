package wallet_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/membo/vtubot/core/catalog"
	"github.com/membo/vtubot/core/database/databasetest"
	"github.com/membo/vtubot/core/users"
	"github.com/membo/vtubot/core/wallet"
)

type LedgerSuite struct {
	suite.Suite
	ctx    context.Context
	db     *sqlx.DB
	ledger *wallet.Ledger
	userID string
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = databasetest.Open(s.T())
	s.ledger = wallet.NewLedger(s.db)

	u := &users.User{FullName: "Jane", Email: "jane@example.com", PasswordHash: "x", PhoneNumber: "2348011111111"}
	s.Require().NoError(users.NewStore(s.db).Create(s.ctx, u))
	s.userID = u.ID
}

func (s *LedgerSuite) fund(amount int64) {
	s.Require().NoError(s.ledger.Credit(s.ctx, s.userID, decimal.NewFromInt(amount)))
}

func (s *LedgerSuite) balance() decimal.Decimal {
	bal, err := s.ledger.Balance(s.ctx, s.userID)
	s.Require().NoError(err)
	return bal
}

func (s *LedgerSuite) TestDebitSufficient() {
	s.fund(1000)

	tx, err := s.ledger.Debit(s.ctx, s.userID, decimal.NewFromInt(150), wallet.Purchase{
		Type: wallet.TxData, Network: catalog.MTN, Recipient: "08012345678",
	})
	s.Require().NoError(err)
	s.Equal(wallet.StatusSuccess, tx.Status)
	s.Equal("850", s.balance().String())

	txs, err := s.ledger.TransactionsFor(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(txs, 1)
	s.Equal(wallet.TxData, txs[0].Type)
	s.Equal("MTN", txs[0].Network)
	s.Equal("08012345678", txs[0].PhoneNumber)
	s.True(txs[0].Amount.Equal(decimal.NewFromInt(150)))
}

func (s *LedgerSuite) TestDebitExactBalance() {
	s.fund(100)
	_, err := s.ledger.Debit(s.ctx, s.userID, decimal.NewFromInt(100), wallet.Purchase{Type: wallet.TxAirtime, Network: catalog.GLO, Recipient: "08000000000"})
	s.Require().NoError(err)
	s.True(s.balance().IsZero())
}

func (s *LedgerSuite) TestDebitInsufficientLeavesNoTrace() {
	s.fund(100)

	_, err := s.ledger.Debit(s.ctx, s.userID, decimal.NewFromInt(101), wallet.Purchase{Type: wallet.TxAirtime, Network: catalog.MTN, Recipient: "08012345678"})
	s.ErrorIs(err, wallet.ErrInsufficientFunds)
	s.Equal("100", s.balance().String())

	n, err := s.ledger.CountTransactions(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *LedgerSuite) TestDebitValidation() {
	_, err := s.ledger.Debit(s.ctx, s.userID, decimal.Zero, wallet.Purchase{Type: wallet.TxAirtime})
	s.ErrorIs(err, wallet.ErrInvalidAmount)
	_, err = s.ledger.Debit(s.ctx, s.userID, decimal.NewFromInt(-5), wallet.Purchase{Type: wallet.TxAirtime})
	s.ErrorIs(err, wallet.ErrInvalidAmount)
	_, err = s.ledger.Debit(s.ctx, "missing", decimal.NewFromInt(5), wallet.Purchase{Type: wallet.TxAirtime})
	s.ErrorIs(err, wallet.ErrUserNotFound)
}

func (s *LedgerSuite) TestConcurrentDebitsNeverOverdraw() {
	s.fund(500)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, rejected int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ledger.Debit(s.ctx, s.userID, decimal.NewFromInt(100), wallet.Purchase{Type: wallet.TxAirtime, Network: catalog.MTN, Recipient: "08012345678"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case err == wallet.ErrInsufficientFunds:
				rejected++
			default:
				s.Failf("unexpected error", "%v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(5, ok)
	s.Equal(5, rejected)
	s.True(s.balance().IsZero())
	n, err := s.ledger.CountTransactions(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(5, n)
}

func (s *LedgerSuite) TestCredit() {
	s.Require().NoError(s.ledger.Credit(s.ctx, s.userID, decimal.RequireFromString("99.5")))
	s.Equal("99.5", s.balance().String())

	s.ErrorIs(s.ledger.Credit(s.ctx, "missing", decimal.NewFromInt(1)), wallet.ErrUserNotFound)
	s.ErrorIs(s.ledger.Credit(s.ctx, s.userID, decimal.Zero), wallet.ErrInvalidAmount)

	n, err := s.ledger.CountTransactions(s.ctx)
	s.Require().NoError(err)
	s.Zero(n, "credits are not logged")
}

func (s *LedgerSuite) TestSumSuccessful() {
	sum, err := s.ledger.SumSuccessful(s.ctx)
	s.Require().NoError(err)
	s.True(sum.IsZero())

	s.fund(1000)
	for _, amt := range []int64{150, 300} {
		_, err := s.ledger.Debit(s.ctx, s.userID, decimal.NewFromInt(amt), wallet.Purchase{Type: wallet.TxData, Network: catalog.MTN, Recipient: "08012345678"})
		s.Require().NoError(err)
	}
	sum, err = s.ledger.SumSuccessful(s.ctx)
	s.Require().NoError(err)
	s.Equal("450", sum.String())
}
