package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/roimaishar/newser/internal/dedup"
	"github.com/roimaishar/newser/internal/domain"
	"github.com/roimaishar/newser/internal/service/mocks"
	"github.com/roimaishar/newser/internal/urgency"
)

type PipelineTestSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	source     *mocks.MockSource
	deduper    *mocks.MockDeduper
	decider    *mocks.MockDecider
	stateStore *mocks.MockStateStore
	transport  *mocks.MockTransport
	analyzer   *mocks.MockAnalyzer
	pipeline   *Pipeline
}

func (s *PipelineTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.source = mocks.NewMockSource(s.ctrl)
	s.deduper = mocks.NewMockDeduper(s.ctrl)
	s.decider = mocks.NewMockDecider(s.ctrl)
	s.stateStore = mocks.NewMockStateStore(s.ctrl)
	s.transport = mocks.NewMockTransport(s.ctrl)
	s.analyzer = mocks.NewMockAnalyzer(s.ctrl)

	s.source.EXPECT().ID().Return("ynet").AnyTimes()
	s.source.EXPECT().Name().Return("ynet (https://example.com/rss)").AnyTimes()

	s.pipeline = NewPipeline(
		[]Source{s.source},
		s.deduper,
		urgency.NewClassifier(urgency.DefaultBreakingKeywords, urgency.DefaultVolumeThreshold),
		s.decider,
		s.stateStore,
		s.transport,
		s.analyzer,
		"default",
		slog.New(slog.DiscardHandler),
	)
}

func (s *PipelineTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func testItems(n int) []domain.Item {
	items := make([]domain.Item, n)
	for i := range items {
		items[i] = domain.Item{
			ID:          string(rune('a' + i)),
			Title:       "story " + string(rune('a'+i)),
			PublishedAt: time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
		}
	}
	return items
}

func (s *PipelineTestSuite) TestRun_DeliversOnNotifyNow() {
	items := testItems(2)

	s.source.EXPECT().FetchItems(gomock.Any()).Return(items, nil)
	s.deduper.EXPECT().Dedupe(gomock.Any(), items).Return(&dedup.Result{Unique: items}, nil)
	s.decider.EXPECT().Decide(domain.UrgencyNormal, gomock.Any()).Return(domain.Decision{
		Action:    domain.ActionNotifyNow,
		Urgency:   domain.UrgencyNormal,
		Window:    domain.WindowPeak,
		StoryCap:  7,
		Reasoning: "normal urgency notifies inside a peak window",
	})
	s.analyzer.EXPECT().Analyze(gomock.Any(), items).Return(&domain.Analysis{
		UrgencyHint: "normal",
		Summary:     "two stories",
	}, nil)
	s.transport.EXPECT().
		Deliver(gomock.Any(), gomock.Any(), items, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.Decision, _ []domain.Item, analysis *domain.Analysis) error {
			s.Require().NotNil(analysis)
			s.Equal("normal", analysis.UrgencyHint)
			s.Equal("two stories", analysis.Summary)
			return nil
		})

	state := domain.NotificationState{Recipient: "default", LastNotifiedAt: time.Now()}
	s.decider.EXPECT().State().Return(state)
	s.stateStore.EXPECT().Save(gomock.Any(), &state).Return(nil)

	stats, err := s.pipeline.Run(context.Background())

	s.Require().NoError(err)
	s.Equal(2, stats.Fetched)
	s.Equal(2, stats.Unique)
	s.Equal(domain.UrgencyNormal, stats.Urgency)
	s.Equal(domain.ActionNotifyNow, stats.Action)
	s.True(stats.Delivered)
}

func (s *PipelineTestSuite) TestRun_PayloadCappedToStoryCap() {
	items := testItems(6)

	s.source.EXPECT().FetchItems(gomock.Any()).Return(items, nil)
	s.deduper.EXPECT().Dedupe(gomock.Any(), items).Return(&dedup.Result{Unique: items}, nil)
	s.decider.EXPECT().Decide(domain.UrgencyHigh, gomock.Any()).Return(domain.Decision{
		Action:   domain.ActionNotifyNow,
		StoryCap: 5,
	})
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, nil)
	s.transport.EXPECT().
		Deliver(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.Decision, payload []domain.Item, _ *domain.Analysis) error {
			s.Len(payload, 5)
			s.Equal(items[0].ID, payload[0].ID)
			return nil
		})
	s.decider.EXPECT().State().Return(domain.NotificationState{Recipient: "default"})
	s.stateStore.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.pipeline.Run(context.Background())
	s.NoError(err)
}

func (s *PipelineTestSuite) TestRun_DeferSkipsDelivery() {
	items := testItems(1)

	s.source.EXPECT().FetchItems(gomock.Any()).Return(items, nil)
	s.deduper.EXPECT().Dedupe(gomock.Any(), items).Return(&dedup.Result{Unique: items}, nil)
	s.decider.EXPECT().Decide(domain.UrgencyNormal, gomock.Any()).Return(domain.Decision{
		Action: domain.ActionDefer,
	})

	stats, err := s.pipeline.Run(context.Background())

	s.Require().NoError(err)
	s.Equal(domain.ActionDefer, stats.Action)
	s.False(stats.Delivered)
}

func (s *PipelineTestSuite) TestRun_SuppressSkipsDelivery() {
	items := testItems(1)
	items[0].LowPriority = true

	s.source.EXPECT().FetchItems(gomock.Any()).Return(items, nil)
	s.deduper.EXPECT().Dedupe(gomock.Any(), items).Return(&dedup.Result{Unique: items}, nil)
	s.decider.EXPECT().Decide(domain.UrgencyLow, gomock.Any()).Return(domain.Decision{
		Action: domain.ActionSuppress,
	})

	stats, err := s.pipeline.Run(context.Background())

	s.Require().NoError(err)
	s.Equal(domain.UrgencyLow, stats.Urgency)
	s.Equal(domain.ActionSuppress, stats.Action)
	s.False(stats.Delivered)
}

func (s *PipelineTestSuite) TestRun_FailingSourceDoesNotAbortBatch() {
	broken := mocks.NewMockSource(s.ctrl)
	broken.EXPECT().ID().Return("broken").AnyTimes()
	broken.EXPECT().Name().Return("broken (https://example.com/broken)").AnyTimes()
	broken.EXPECT().FetchItems(gomock.Any()).Return(nil, errors.New("feed timeout"))

	items := testItems(1)
	s.source.EXPECT().FetchItems(gomock.Any()).Return(items, nil)

	pipeline := NewPipeline(
		[]Source{broken, s.source},
		s.deduper,
		urgency.NewClassifier(urgency.DefaultBreakingKeywords, urgency.DefaultVolumeThreshold),
		s.decider,
		s.stateStore,
		s.transport,
		nil,
		"default",
		slog.New(slog.DiscardHandler),
	)

	s.deduper.EXPECT().Dedupe(gomock.Any(), items).Return(&dedup.Result{Unique: items}, nil)
	s.decider.EXPECT().Decide(gomock.Any(), gomock.Any()).Return(domain.Decision{Action: domain.ActionDefer})

	stats, err := pipeline.Run(context.Background())

	s.Require().NoError(err)
	s.Equal(1, stats.Fetched)
}

func (s *PipelineTestSuite) TestRun_InvalidItemsExcluded() {
	valid := testItems(1)
	batch := append([]domain.Item{
		{ID: "empty", PublishedAt: time.Now()},
		{ID: "undated", Title: "no timestamp"},
	}, valid...)

	s.source.EXPECT().FetchItems(gomock.Any()).Return(batch, nil)
	s.deduper.EXPECT().Dedupe(gomock.Any(), valid).Return(&dedup.Result{Unique: valid}, nil)
	s.decider.EXPECT().Decide(gomock.Any(), gomock.Any()).Return(domain.Decision{Action: domain.ActionDefer})

	stats, err := s.pipeline.Run(context.Background())

	s.Require().NoError(err)
	s.Equal(3, stats.Fetched)
	s.Equal(2, stats.Invalid)
	s.Equal(1, stats.Unique)
}

func (s *PipelineTestSuite) TestRun_AllDuplicatesShortCircuits() {
	items := testItems(2)

	s.source.EXPECT().FetchItems(gomock.Any()).Return(items, nil)
	s.deduper.EXPECT().Dedupe(gomock.Any(), items).Return(&dedup.Result{
		Duplicates: []dedup.Duplicate{
			{Item: items[0], Rule: "content_hash"},
			{Item: items[1], Rule: "content_hash"},
		},
	}, nil)

	stats, err := s.pipeline.Run(context.Background())

	s.Require().NoError(err)
	s.Zero(stats.Unique)
	s.Equal(2, stats.Duplicates)
	s.False(stats.Delivered)
}

func (s *PipelineTestSuite) TestRun_DedupeFailureAborts() {
	items := testItems(1)

	s.source.EXPECT().FetchItems(gomock.Any()).Return(items, nil)
	s.deduper.EXPECT().Dedupe(gomock.Any(), items).Return(nil, errors.New("store unavailable"))

	stats, err := s.pipeline.Run(context.Background())

	s.Error(err)
	s.Nil(stats)
}

func (s *PipelineTestSuite) TestRun_DeliverFailure() {
	items := testItems(1)

	s.source.EXPECT().FetchItems(gomock.Any()).Return(items, nil)
	s.deduper.EXPECT().Dedupe(gomock.Any(), items).Return(&dedup.Result{Unique: items}, nil)
	s.decider.EXPECT().Decide(gomock.Any(), gomock.Any()).Return(domain.Decision{
		Action:   domain.ActionNotifyNow,
		StoryCap: 5,
	})
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, nil)
	s.transport.EXPECT().Deliver(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("channel closed"))

	stats, err := s.pipeline.Run(context.Background())

	s.Error(err)
	s.NotNil(stats)
	s.False(stats.Delivered)
}

func (s *PipelineTestSuite) TestRun_AnalyzerFailureIsBestEffort() {
	items := testItems(1)

	s.source.EXPECT().FetchItems(gomock.Any()).Return(items, nil)
	s.deduper.EXPECT().Dedupe(gomock.Any(), items).Return(&dedup.Result{Unique: items}, nil)
	s.decider.EXPECT().Decide(gomock.Any(), gomock.Any()).Return(domain.Decision{
		Action:   domain.ActionNotifyNow,
		StoryCap: 5,
	})
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, errors.New("analysis service down"))
	s.transport.EXPECT().Deliver(gomock.Any(), gomock.Any(), items, gomock.Nil()).Return(nil)
	s.decider.EXPECT().State().Return(domain.NotificationState{Recipient: "default"})
	s.stateStore.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)

	stats, err := s.pipeline.Run(context.Background())

	s.Require().NoError(err)
	s.True(stats.Delivered)
}

func (s *PipelineTestSuite) TestRun_StateSaveFailure() {
	items := testItems(1)

	s.source.EXPECT().FetchItems(gomock.Any()).Return(items, nil)
	s.deduper.EXPECT().Dedupe(gomock.Any(), items).Return(&dedup.Result{Unique: items}, nil)
	s.decider.EXPECT().Decide(gomock.Any(), gomock.Any()).Return(domain.Decision{
		Action:   domain.ActionNotifyNow,
		StoryCap: 5,
	})
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, nil)
	s.transport.EXPECT().Deliver(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	s.decider.EXPECT().State().Return(domain.NotificationState{Recipient: "default"})
	s.stateStore.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("write conflict"))

	_, err := s.pipeline.Run(context.Background())
	s.Error(err)
}

func (s *PipelineTestSuite) TestEvict() {
	s.deduper.EXPECT().Evict(gomock.Any()).Return(int64(3), nil)
	s.NoError(s.pipeline.Evict(context.Background()))

	s.deduper.EXPECT().Evict(gomock.Any()).Return(int64(0), errors.New("timeout"))
	s.Error(s.pipeline.Evict(context.Background()))
}
