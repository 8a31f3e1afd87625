package spotcore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"spotcore/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func testConfig(t *testing.T) *Config {
	cfg := &Config{
		Markets: []MarketConfig{
			{ID: "BTC_USDT", BaseAsset: "BTC", QuoteAsset: "USDT"},
		},
		SeedBalances: map[string]map[string]string{
			"A": {"BTC": "10"},
			"B": {"USDT": "100000"},
		},
		Snapshot:      SnapshotConfig{Dir: filepath.Join(t.TempDir(), "snapshots")},
		RequestBuffer: 64,
	}
	require.NoError(t, cfg.validate())
	return cfg
}

type EngineTestSuite struct {
	suite.Suite
	engine    *Engine
	publisher *MemoryPublisher
	cancel    context.CancelFunc
	runDone   chan error
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) SetupTest() {
	cfg := testConfig(s.T())
	s.publisher = NewMemoryPublisher()
	s.engine = NewEngine(cfg, s.publisher, NewFileSnapshotStore(cfg.Snapshot.Dir))
	s.Require().NoError(s.engine.Bootstrap())

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.runDone = make(chan error, 1)
	go func() {
		s.runDone <- s.engine.Run(ctx)
	}()
}

func (s *EngineTestSuite) TearDownTest() {
	s.cancel()
	select {
	case err := <-s.runDone:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("engine did not shut down")
	}
}

func (s *EngineTestSuite) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	s.T().Cleanup(cancel)
	return ctx
}

// Full cross at one price: A rests a sell, B lifts it, funds change hands
// exactly once.
func (s *EngineTestSuite) TestCrossAtSamePrice() {
	placed, err := s.engine.CreateOrder(s.ctx(), &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideSell, Price: "50000", Quantity: "1", UserID: "A",
	})
	s.Require().NoError(err)
	s.Equal("0", placed.ExecutedQty)
	s.Empty(placed.Fills)

	depth, err := s.engine.GetDepth(s.ctx(), "BTC_USDT")
	s.Require().NoError(err)
	s.Equal([][2]string{{"50000", "1"}}, depth.Asks)
	s.Empty(depth.Bids)

	placed, err = s.engine.CreateOrder(s.ctx(), &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideBuy, Price: "50000", Quantity: "1", UserID: "B",
	})
	s.Require().NoError(err)
	s.Equal("1", placed.ExecutedQty)
	s.Require().Len(placed.Fills, 1)
	s.Equal("50000", placed.Fills[0].Price)
	s.Equal("1", placed.Fills[0].Quantity)
	s.Equal("A", placed.Fills[0].MakerUserID)

	ledger := s.engine.Ledger()
	s.True(ledger.Balance("A", "BTC").Available.Equal(d("9")))
	s.True(ledger.Balance("A", "BTC").Locked.IsZero())
	s.True(ledger.Balance("A", "USDT").Available.Equal(d("50000")))
	s.True(ledger.Balance("B", "USDT").Available.Equal(d("50000")))
	s.True(ledger.Balance("B", "USDT").Locked.IsZero())
	s.True(ledger.Balance("B", "BTC").Available.Equal(d("1")))

	depth, err = s.engine.GetDepth(s.ctx(), "BTC_USDT")
	s.Require().NoError(err)
	s.Empty(depth.Asks)

	// One trade event, and the 50000 ask level reported empty.
	s.Equal(1, s.publisher.TradeCount())
	trade := s.publisher.TradeAt(0)
	s.Equal(uint64(1), trade.TradeID)
	s.Equal("50000", trade.Price)
	s.Equal("A", trade.MakerUserID)
	s.Equal(Buy, trade.TakerSide)

	level := s.publisher.LastDepth("BTC_USDT", Sell, "50000")
	s.Require().NotNil(level)
	s.Equal("0", level.Quantity)
}

// A lock that cannot be covered rejects the order without touching the book
// or the ledger.
func (s *EngineTestSuite) TestInsufficientFunds() {
	_, err := s.engine.CreateOrder(s.ctx(), &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideBuy, Price: "50000", Quantity: "3", UserID: "B",
	})
	s.Require().ErrorIs(err, ErrInsufficientFunds)

	ledger := s.engine.Ledger()
	s.True(ledger.Balance("B", "USDT").Available.Equal(d("100000")))
	s.True(ledger.Balance("B", "USDT").Locked.IsZero())

	depth, err := s.engine.GetDepth(s.ctx(), "BTC_USDT")
	s.Require().NoError(err)
	s.Empty(depth.Bids)
	s.Empty(depth.Asks)
}

// Partial fill leaves the maker resting with its aggregate reduced.
func (s *EngineTestSuite) TestPartialFill() {
	_, err := s.engine.CreateOrder(s.ctx(), &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideSell, Price: "100", Quantity: "2", UserID: "A",
	})
	s.Require().NoError(err)

	placed, err := s.engine.CreateOrder(s.ctx(), &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideBuy, Price: "100", Quantity: "1", UserID: "B",
	})
	s.Require().NoError(err)
	s.Equal("1", placed.ExecutedQty)

	open, err := s.engine.GetOpenOrders(s.ctx(), "BTC_USDT", "A")
	s.Require().NoError(err)
	s.Require().Len(open.Orders, 1)
	s.Equal("1", open.Orders[0].Filled)
	s.Equal("2", open.Orders[0].Quantity)

	depth, err := s.engine.GetDepth(s.ctx(), "BTC_USDT")
	s.Require().NoError(err)
	s.Equal([][2]string{{"100", "1"}}, depth.Asks)
}

// Cancelling releases exactly the remaining reservation.
func (s *EngineTestSuite) TestCancelReleasesReservation() {
	placed, err := s.engine.CreateOrder(s.ctx(), &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideBuy, Price: "100", Quantity: "5", UserID: "B",
	})
	s.Require().NoError(err)

	ledger := s.engine.Ledger()
	s.True(ledger.Balance("B", "USDT").Locked.Equal(d("500")))

	cancelled, err := s.engine.CancelOrder(s.ctx(), &protocol.CancelOrderRequest{
		Market: "BTC_USDT", OrderID: placed.OrderID, Side: protocol.SideBuy, UserID: "B",
	})
	s.Require().NoError(err)
	s.Equal("5", cancelled.RemainingQty)

	s.True(ledger.Balance("B", "USDT").Locked.IsZero())
	s.True(ledger.Balance("B", "USDT").Available.Equal(d("100000")))

	level := s.publisher.LastDepth("BTC_USDT", Buy, "100")
	s.Require().NotNil(level)
	s.Equal("0", level.Quantity)

	// Cancelling again is a no-op rejection.
	_, err = s.engine.CancelOrder(s.ctx(), &protocol.CancelOrderRequest{
		Market: "BTC_USDT", OrderID: placed.OrderID, Side: protocol.SideBuy, UserID: "B",
	})
	s.ErrorIs(err, ErrOrderNotFound)
}

// Another user's order ID behaves exactly like an unknown one.
func (s *EngineTestSuite) TestCancelOwnershipEnforced() {
	placed, err := s.engine.CreateOrder(s.ctx(), &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideSell, Price: "100", Quantity: "1", UserID: "A",
	})
	s.Require().NoError(err)

	_, err = s.engine.CancelOrder(s.ctx(), &protocol.CancelOrderRequest{
		Market: "BTC_USDT", OrderID: placed.OrderID, Side: protocol.SideSell, UserID: "B",
	})
	s.ErrorIs(err, ErrOrderNotFound)

	open, err := s.engine.GetOpenOrders(s.ctx(), "BTC_USDT", "A")
	s.Require().NoError(err)
	s.Len(open.Orders, 1)
}

func (s *EngineTestSuite) TestMarketNotFound() {
	_, err := s.engine.CreateOrder(s.ctx(), &protocol.CreateOrderRequest{
		Market: "ETH_USDT", Side: protocol.SideBuy, Price: "100", Quantity: "1", UserID: "B",
	})
	s.ErrorIs(err, ErrMarketNotFound)
}

// Reads always succeed: an unknown market is simply empty.
func (s *EngineTestSuite) TestReadsOnUnknownMarket() {
	depth, err := s.engine.GetDepth(s.ctx(), "ETH_USDT")
	s.Require().NoError(err)
	s.Empty(depth.Bids)
	s.Empty(depth.Asks)

	open, err := s.engine.GetOpenOrders(s.ctx(), "ETH_USDT", "A")
	s.Require().NoError(err)
	s.Empty(open.Orders)
}

func (s *EngineTestSuite) TestDeposit() {
	err := s.engine.Deposit(s.ctx(), &protocol.DepositRequest{UserID: "C", Asset: "USDT", Amount: "2500"})
	s.Require().NoError(err)
	s.True(s.engine.Ledger().Balance("C", "USDT").Available.Equal(d("2500")))
}

// Price improvement: a buy above the best ask fills at the ask and the
// over-locked quote returns to available.
func (s *EngineTestSuite) TestPriceImprovementReconciliation() {
	_, err := s.engine.CreateOrder(s.ctx(), &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideSell, Price: "100", Quantity: "1", UserID: "A",
	})
	s.Require().NoError(err)

	placed, err := s.engine.CreateOrder(s.ctx(), &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideBuy, Price: "110", Quantity: "1", UserID: "B",
	})
	s.Require().NoError(err)
	s.Require().Len(placed.Fills, 1)
	s.Equal("100", placed.Fills[0].Price)

	ledger := s.engine.Ledger()
	s.True(ledger.Balance("B", "USDT").Available.Equal(d("99900")))
	s.True(ledger.Balance("B", "USDT").Locked.IsZero())
}

// Conservation: any sequence of orders and cancels only transfers assets
// between counterparties, and no balance ever goes negative.
func (s *EngineTestSuite) TestConservation() {
	requests := []*protocol.CreateOrderRequest{
		{Market: "BTC_USDT", Side: protocol.SideSell, Price: "100", Quantity: "3", UserID: "A"},
		{Market: "BTC_USDT", Side: protocol.SideBuy, Price: "90", Quantity: "2", UserID: "B"},
		{Market: "BTC_USDT", Side: protocol.SideBuy, Price: "105", Quantity: "1", UserID: "B"},
		{Market: "BTC_USDT", Side: protocol.SideSell, Price: "90", Quantity: "1", UserID: "A"},
		{Market: "BTC_USDT", Side: protocol.SideBuy, Price: "100", Quantity: "2", UserID: "B"},
	}

	var placedIDs []string
	for _, req := range requests {
		placed, err := s.engine.CreateOrder(s.ctx(), req)
		s.Require().NoError(err)
		placedIDs = append(placedIDs, placed.OrderID)

		ledger := s.engine.Ledger()
		s.True(ledger.TotalSupply("BTC").Equal(d("10")), "BTC supply changed")
		s.True(ledger.TotalSupply("USDT").Equal(d("100000")), "USDT supply changed")
		for _, user := range []string{"A", "B"} {
			for _, asset := range []string{"BTC", "USDT"} {
				b := ledger.Balance(user, asset)
				s.False(b.Available.IsNegative(), "negative available for %s/%s", user, asset)
				s.False(b.Locked.IsNegative(), "negative locked for %s/%s", user, asset)
			}
		}
	}

	// Cancel whatever still rests; totals must hold and locks clear.
	for i, req := range requests {
		side := req.Side
		_, err := s.engine.CancelOrder(s.ctx(), &protocol.CancelOrderRequest{
			Market: "BTC_USDT", OrderID: placedIDs[i], Side: side, UserID: req.UserID,
		})
		if err != nil {
			s.ErrorIs(err, ErrOrderNotFound)
		}
	}

	ledger := s.engine.Ledger()
	s.True(ledger.TotalSupply("BTC").Equal(d("10")))
	s.True(ledger.TotalSupply("USDT").Equal(d("100000")))
	s.True(ledger.Balance("A", "BTC").Locked.IsZero())
	s.True(ledger.Balance("B", "USDT").Locked.IsZero())
}

// Submit without a running loop times out as EngineUnavailable, distinct
// from a substantive rejection.
func TestSubmitTimesOutWithoutEngine(t *testing.T) {
	cfg := testConfig(t)
	engine := NewEngine(cfg, NewDiscardPublisher(), NewFileSnapshotStore(cfg.Snapshot.Dir))
	require.NoError(t, engine.Bootstrap())
	// Run is never started.

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := engine.GetDepth(ctx, "BTC_USDT")
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestSubmitAfterShutdown(t *testing.T) {
	cfg := testConfig(t)
	engine := NewEngine(cfg, NewDiscardPublisher(), NewFileSnapshotStore(cfg.Snapshot.Dir))
	require.NoError(t, engine.Bootstrap())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	cancel()
	require.NoError(t, <-done)

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer reqCancel()
	_, err := engine.GetDepth(reqCtx, "BTC_USDT")
	assert.ErrorIs(t, err, ErrShutdown)
}

// Restart recovery: a second engine built from the final snapshot carries
// resting orders, balances and the trade ID counter forward.
func TestEngineRecoversFromSnapshot(t *testing.T) {
	cfg := testConfig(t)
	store := NewFileSnapshotStore(cfg.Snapshot.Dir)

	engine1 := NewEngine(cfg, NewDiscardPublisher(), store)
	require.NoError(t, engine1.Bootstrap())

	ctx1, cancel1 := context.WithCancel(context.Background())
	done1 := make(chan error, 1)
	go func() { done1 <- engine1.Run(ctx1) }()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), time.Second)
	defer reqCancel()

	// One full trade, then a resting sell survives the restart.
	_, err := engine1.CreateOrder(reqCtx, &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideSell, Price: "50000", Quantity: "1", UserID: "A",
	})
	require.NoError(t, err)
	_, err = engine1.CreateOrder(reqCtx, &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideBuy, Price: "50000", Quantity: "1", UserID: "B",
	})
	require.NoError(t, err)
	_, err = engine1.CreateOrder(reqCtx, &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideSell, Price: "60000", Quantity: "2", UserID: "A",
	})
	require.NoError(t, err)

	cancel1()
	require.NoError(t, <-done1)

	engine2 := NewEngine(cfg, NewDiscardPublisher(), store)
	require.NoError(t, engine2.Bootstrap())

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	done2 := make(chan error, 1)
	go func() { done2 <- engine2.Run(ctx2) }()

	depth, err := engine2.GetDepth(reqCtx, "BTC_USDT")
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"60000", "2"}}, depth.Asks)

	ledger := engine2.Ledger()
	assert.True(t, ledger.Balance("A", "BTC").Available.Equal(d("7")))
	assert.True(t, ledger.Balance("A", "BTC").Locked.Equal(d("2")))
	assert.True(t, ledger.Balance("A", "USDT").Available.Equal(d("50000")))
	assert.True(t, ledger.Balance("B", "BTC").Available.Equal(d("1")))

	// Trade IDs continue from the snapshot instead of restarting at 1.
	placed, err := engine2.CreateOrder(reqCtx, &protocol.CreateOrderRequest{
		Market: "BTC_USDT", Side: protocol.SideBuy, Price: "60000", Quantity: "1", UserID: "B",
	})
	require.NoError(t, err)
	require.Len(t, placed.Fills, 1)
	assert.Equal(t, uint64(2), placed.Fills[0].TradeID)
}
