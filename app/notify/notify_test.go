package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-pkgz/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/dur2work/app/notify/mocks"
)

func TestNewService(t *testing.T) {
	assert.Nil(t, NewService(Params{}))

	svc := NewService(Params{ToEmails: []string{"test@example.com"}, HostName: "box"})
	require.NotNil(t, svc)
	assert.Equal(t, "dur2work@box", svc.fromEmail)
	require.Len(t, svc.destinations, 1)
	assert.Equal(t, "mailto", svc.destinations[0].Schema())

	svc = NewService(Params{ToEmails: []string{"test@example.com"}, FromEmail: "me@example.com"})
	require.NotNil(t, svc)
	assert.Equal(t, "me@example.com", svc.fromEmail)
}

func TestService_MakeErrorHTML(t *testing.T) {
	svc := NewService(Params{ToEmails: []string{"test@example.com"}, HostName: "box"})
	res, err := svc.MakeErrorHTML(Failure{
		Routes: []string{"Home -> Work", "Work -> <Home>"},
		Err:    errors.New("no route found"),
		TS:     time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Contains(t, res, `dur2work run failed on <span class="bold">box</span> at 2023-11-14T22:13:20Z`)
	assert.Contains(t, res, `<li>Route: <span class="bold">Home -&gt; Work</span></li>`)
	assert.Contains(t, res, "Work -&gt; &lt;Home&gt;")
	assert.Contains(t, res, "<pre>no route found</pre>")
}

func TestService_Send(t *testing.T) {
	tests := []struct {
		name           string
		subj           string
		destination    string
		mockSendErr    error
		expectedErrMsg string
	}{
		{
			name:        "successful send",
			subj:        "Test Subject",
			destination: "mailto:to@example.com,to2@example.com?from=from%40example.com&subject=Test+Subject",
		},
		{
			name:           "send error",
			subj:           "Problem Subject",
			destination:    "mailto:to@example.com,to2@example.com?from=from%40example.com&subject=Problem+Subject",
			mockSendErr:    errors.New("mock error"),
			expectedErrMsg: "mock error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailtoNotifier := &mocks.NotifierMock{
				SendFunc: func(_ context.Context, dest string, text string) error {
					assert.Equal(t, "some text", text)
					assert.Equal(t, tt.destination, dest)
					return tt.mockSendErr
				},
				SchemaFunc: func() string { return "mailto" },
			}

			s := Service{
				destinations: []notify.Notifier{mailtoNotifier},
				fromEmail:    "from@example.com",
				toEmail:      []string{"to@example.com", "to2@example.com"},
			}

			err := s.Send(context.Background(), tt.subj, "some text")
			assert.Len(t, mailtoNotifier.SendCalls(), 1)
			if tt.expectedErrMsg == "" {
				require.NoError(t, err)
			} else {
				assert.EqualError(t, err, tt.expectedErrMsg)
			}
		})
	}
}

func TestService_OnError(t *testing.T) {
	mailtoNotifier := &mocks.NotifierMock{
		SendFunc:   func(_ context.Context, dest string, text string) error { return nil },
		SchemaFunc: func() string { return "mailto" },
	}
	s := Service{destinations: []notify.Notifier{mailtoNotifier}, fromEmail: "from@example.com",
		toEmail: []string{"to@example.com"}, hostName: "box"}

	err := s.OnError(context.Background(), Failure{Routes: []string{"Home -> Work"}, Err: errors.New("boom")})
	require.NoError(t, err)
	require.Len(t, mailtoNotifier.SendCalls(), 1)
	assert.Contains(t, mailtoNotifier.SendCalls()[0].Destination, "subject=dur2work+failed+on+box")
	assert.Contains(t, mailtoNotifier.SendCalls()[0].Text, "boom")
}
