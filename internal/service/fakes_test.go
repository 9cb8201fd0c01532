package service

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/mock"

	"github.com/tipjar/slack-tip-server/internal/model"
	"github.com/tipjar/slack-tip-server/internal/repository"
)

// postedMessage is a chat message captured by fakeSlack.
type postedMessage struct {
	Channel   string
	User      string
	Endpoint  string
	Values    url.Values
	Ephemeral bool
}

func (m postedMessage) Text() string   { return m.Values.Get("text") }
func (m postedMessage) Blocks() string { return m.Values.Get("blocks") }

// fakeSlack records Web API calls and returns canned results.
type fakeSlack struct {
	mu sync.Mutex

	messages []postedMessage
	views    []slack.ModalViewRequest
	uploads  []slack.UploadFileV2Parameters

	users        map[string]*slack.User
	postErrs     map[string]error
	ephemeralErr error
	viewErr      error
	uploadErr    error
}

func newFakeSlack() *fakeSlack {
	return &fakeSlack{
		users:    map[string]*slack.User{},
		postErrs: map[string]error{},
	}
}

const fakeAPIURL = "https://slack.com/api/"

func (f *fakeSlack) record(channel, user string, ephemeral bool, options []slack.MsgOption) {
	endpoint, values, _ := slack.UnsafeApplyMsgOptions("xoxb-test", channel, fakeAPIURL, options...)
	f.messages = append(f.messages, postedMessage{
		Channel:   channel,
		User:      user,
		Endpoint:  endpoint,
		Values:    values,
		Ephemeral: ephemeral,
	})
}

func (f *fakeSlack) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Channel errors hit Web API posts only; response_url deliveries succeed.
	endpoint, _, _ := slack.UnsafeApplyMsgOptions("xoxb-test", channelID, fakeAPIURL, options...)
	if err := f.postErrs[channelID]; err != nil && strings.HasPrefix(endpoint, fakeAPIURL) {
		return "", "", err
	}
	f.record(channelID, "", false, options)
	return channelID, "1700000000.000100", nil
}

func (f *fakeSlack) PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ephemeralErr != nil {
		return "", f.ephemeralErr
	}
	if err := f.postErrs[channelID]; err != nil {
		return "", err
	}
	f.record(channelID, userID, true, options)
	return "1700000000.000200", nil
}

func (f *fakeSlack) OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.viewErr != nil {
		return nil, f.viewErr
	}
	f.views = append(f.views, view)
	return &slack.ViewResponse{}, nil
}

func (f *fakeSlack) GetUserInfoContext(ctx context.Context, user string) (*slack.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[user]; ok {
		return u, nil
	}
	return nil, slack.SlackErrorResponse{Err: "user_not_found"}
}

func (f *fakeSlack) OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	ch := &slack.Channel{}
	ch.ID = "D" + params.Users[0]
	return ch, false, false, nil
}

func (f *fakeSlack) UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads = append(f.uploads, params)
	return &slack.FileSummary{ID: "F1"}, nil
}

func (f *fakeSlack) public() []postedMessage {
	var out []postedMessage
	for _, m := range f.messages {
		if !m.Ephemeral {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSlack) ephemerals() []postedMessage {
	var out []postedMessage
	for _, m := range f.messages {
		if m.Ephemeral {
			out = append(out, m)
		}
	}
	return out
}

// Mock configuration repository
type mockConfigRepo struct {
	mock.Mock
}

var _ repository.UserConfigurationRepository = (*mockConfigRepo)(nil)

func (m *mockConfigRepo) FindByUserAndTeam(ctx context.Context, userID, teamID string) (*model.UserConfiguration, error) {
	args := m.Called(ctx, userID, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserConfiguration), args.Error(1)
}

func (m *mockConfigRepo) FindByUserID(ctx context.Context, userID string) (*model.UserConfiguration, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserConfiguration), args.Error(1)
}

func (m *mockConfigRepo) Upsert(ctx context.Context, params model.UpsertConfigurationParams) (*model.UserConfiguration, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserConfiguration), args.Error(1)
}

func (m *mockConfigRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// Mock installation repository
type mockInstallationRepo struct {
	mock.Mock
}

func (m *mockInstallationRepo) Find(ctx context.Context, teamID string, enterpriseID *string) (*model.SlackInstallation, error) {
	args := m.Called(ctx, teamID, enterpriseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SlackInstallation), args.Error(1)
}

func (m *mockInstallationRepo) Upsert(ctx context.Context, params model.UpsertInstallationParams) (*model.SlackInstallation, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SlackInstallation), args.Error(1)
}

func (m *mockInstallationRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// memoryDedup is an in-process seen-set.
type memoryDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryDedup() *memoryDedup {
	return &memoryDedup{seen: map[string]bool{}}
}

func (d *memoryDedup) FirstSeen(ctx context.Context, key string) bool {
	if key == "" {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *memoryDedup) Forget(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

type staticImages struct {
	png []byte
	err error
}

func (s staticImages) Get(ctx context.Context, userID, paymentURL string) ([]byte, error) {
	return s.png, s.err
}

func strPtr(s string) *string { return &s }
