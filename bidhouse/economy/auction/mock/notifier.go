package mock

import (
	context "context"
	reflect "reflect"

	models "github.com/gohye/bidhouse/bidhouse/database/models"
	events "github.com/gohye/bidhouse/bidhouse/events"
	gomock "go.uber.org/mock/gomock"
)

// MockNotifier is a mock of Notifier interface.
type MockNotifier struct {
	ctrl     *gomock.Controller
	recorder *MockNotifierMockRecorder
	isgomock struct{}
}

// MockNotifierMockRecorder is the mock recorder for MockNotifier.
type MockNotifierMockRecorder struct {
	mock *MockNotifier
}

// NewMockNotifier creates a new mock instance.
func NewMockNotifier(ctrl *gomock.Controller) *MockNotifier {
	mock := &MockNotifier{ctrl: ctrl}
	mock.recorder = &MockNotifierMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockNotifier) EXPECT() *MockNotifierMockRecorder {
	return m.recorder
}

// NotifyAuctionEnd mocks base method.
func (m *MockNotifier) NotifyAuctionEnd(ctx context.Context, item *models.AuctionItem) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "NotifyAuctionEnd", ctx, item)
	ret0, _ := ret[0].(error)
	return ret0
}

// NotifyAuctionEnd indicates an expected call of NotifyAuctionEnd.
func (mr *MockNotifierMockRecorder) NotifyAuctionEnd(ctx, item any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "NotifyAuctionEnd", reflect.TypeOf((*MockNotifier)(nil).NotifyAuctionEnd), ctx, item)
}

// NotifyOutbid mocks base method.
func (m *MockNotifier) NotifyOutbid(ctx context.Context, item *models.AuctionItem, outbidUserID string, bid *models.Bid) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "NotifyOutbid", ctx, item, outbidUserID, bid)
	ret0, _ := ret[0].(error)
	return ret0
}

// NotifyOutbid indicates an expected call of NotifyOutbid.
func (mr *MockNotifierMockRecorder) NotifyOutbid(ctx, item, outbidUserID, bid any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "NotifyOutbid", reflect.TypeOf((*MockNotifier)(nil).NotifyOutbid), ctx, item, outbidUserID, bid)
}

// NotifyProxyExhausted mocks base method.
func (m *MockNotifier) NotifyProxyExhausted(ctx context.Context, item *models.AuctionItem, proxy *models.ProxyBid) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "NotifyProxyExhausted", ctx, item, proxy)
	ret0, _ := ret[0].(error)
	return ret0
}

// NotifyProxyExhausted indicates an expected call of NotifyProxyExhausted.
func (mr *MockNotifierMockRecorder) NotifyProxyExhausted(ctx, item, proxy any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "NotifyProxyExhausted", reflect.TypeOf((*MockNotifier)(nil).NotifyProxyExhausted), ctx, item, proxy)
}

// MockArchiver is a mock of Archiver interface.
type MockArchiver struct {
	ctrl     *gomock.Controller
	recorder *MockArchiverMockRecorder
	isgomock struct{}
}

// MockArchiverMockRecorder is the mock recorder for MockArchiver.
type MockArchiverMockRecorder struct {
	mock *MockArchiver
}

// NewMockArchiver creates a new mock instance.
func NewMockArchiver(ctrl *gomock.Controller) *MockArchiver {
	mock := &MockArchiver{ctrl: ctrl}
	mock.recorder = &MockArchiverMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockArchiver) EXPECT() *MockArchiverMockRecorder {
	return m.recorder
}

// Archive mocks base method.
func (m *MockArchiver) Archive(ctx context.Context, item *models.AuctionItem, bids []*models.Bid) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Archive", ctx, item, bids)
	ret0, _ := ret[0].(error)
	return ret0
}

// Archive indicates an expected call of Archive.
func (mr *MockArchiverMockRecorder) Archive(ctx, item, bids any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Archive", reflect.TypeOf((*MockArchiver)(nil).Archive), ctx, item, bids)
}

// MockEventPublisher is a mock of EventPublisher interface.
type MockEventPublisher struct {
	ctrl     *gomock.Controller
	recorder *MockEventPublisherMockRecorder
	isgomock struct{}
}

// MockEventPublisherMockRecorder is the mock recorder for MockEventPublisher.
type MockEventPublisherMockRecorder struct {
	mock *MockEventPublisher
}

// NewMockEventPublisher creates a new mock instance.
func NewMockEventPublisher(ctrl *gomock.Controller) *MockEventPublisher {
	mock := &MockEventPublisher{ctrl: ctrl}
	mock.recorder = &MockEventPublisherMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockEventPublisher) EXPECT() *MockEventPublisherMockRecorder {
	return m.recorder
}

// Publish mocks base method.
func (m *MockEventPublisher) Publish(env events.Envelope) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Publish", env)
}

// Publish indicates an expected call of Publish.
func (mr *MockEventPublisherMockRecorder) Publish(env any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Publish", reflect.TypeOf((*MockEventPublisher)(nil).Publish), env)
}
