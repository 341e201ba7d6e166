package mailer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standardthought/internal/config"
)

var testMsg = Message{
	To:      "reader@example.com",
	From:    "Standardthought <newsletter@standardthought.com>",
	Subject: "Your Weekly Wealth Building Insights",
	HTML:    "<p>Hi</p>",
}

// recordingServer captures the request path, auth header and JSON body.
func recordingServer(t *testing.T, status int, path, auth *string, body *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*path = r.URL.Path
		*auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, body)
		w.WriteHeader(status)
		w.Write([]byte(`{"message":"nope"}`))
	}))
}

func TestResendSend(t *testing.T) {
	var path, auth string
	var body map[string]any
	srv := recordingServer(t, http.StatusOK, &path, &auth, &body)
	defer srv.Close()

	err := NewResend("re_test", srv.URL, nil).Send(context.Background(), testMsg)
	require.NoError(t, err)

	assert.Equal(t, "/emails", path)
	assert.Equal(t, "Bearer re_test", auth)
	assert.Equal(t, testMsg.From, body["from"])
	assert.Equal(t, []any{"reader@example.com"}, body["to"])
	assert.Equal(t, "<p>Hi</p>", body["html"])
}

func TestResendSend_ErrorStatus(t *testing.T) {
	var path, auth string
	var body map[string]any
	srv := recordingServer(t, http.StatusUnprocessableEntity, &path, &auth, &body)
	defer srv.Close()

	err := NewResend("re_test", srv.URL, nil).Send(context.Background(), testMsg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
	assert.Contains(t, err.Error(), "nope")
}

func TestSendGridSend(t *testing.T) {
	var path, auth string
	var body map[string]any
	srv := recordingServer(t, http.StatusAccepted, &path, &auth, &body)
	defer srv.Close()

	err := NewSendGrid("SG.test", srv.URL, nil).Send(context.Background(), testMsg)
	require.NoError(t, err)

	assert.Equal(t, "/v3/mail/send", path)
	assert.Equal(t, "Bearer SG.test", auth)
	from := body["from"].(map[string]any)
	assert.Equal(t, "newsletter@standardthought.com", from["email"])
	assert.Equal(t, "Standardthought", from["name"])
}

func TestSendGridSend_ErrorStatus(t *testing.T) {
	var path, auth string
	var body map[string]any
	srv := recordingServer(t, http.StatusUnauthorized, &path, &auth, &body)
	defer srv.Close()

	err := NewSendGrid("SG.bad", srv.URL, nil).Send(context.Background(), testMsg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestSMTPSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	s := NewSMTP(SMTPConfig{Host: "mail.example.com", Port: 2525})
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.Nil(t, a, "no auth without a username")
		return nil
	}

	require.NoError(t, s.Send(context.Background(), testMsg))
	assert.Equal(t, "mail.example.com:2525", gotAddr)
	assert.Equal(t, "newsletter@standardthought.com", gotFrom)
	assert.Equal(t, []string{"reader@example.com"}, gotTo)

	raw := string(gotMsg)
	assert.Contains(t, raw, "To: reader@example.com\r\n")
	assert.Contains(t, raw, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>Hi</p>")
}

var unsubscribeHeaders = map[string]string{
	"List-Unsubscribe":      "<https://standardthought.com/functions/v1/unsubscribe?token=abc>",
	"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
}

func TestSendCarriesHeaders(t *testing.T) {
	msg := testMsg
	msg.Headers = unsubscribeHeaders

	t.Run("resend", func(t *testing.T) {
		var path, auth string
		var body map[string]any
		srv := recordingServer(t, http.StatusOK, &path, &auth, &body)
		defer srv.Close()

		require.NoError(t, NewResend("re_test", srv.URL, nil).Send(context.Background(), msg))
		headers := body["headers"].(map[string]any)
		assert.Equal(t, "List-Unsubscribe=One-Click", headers["List-Unsubscribe-Post"])
		assert.Equal(t, unsubscribeHeaders["List-Unsubscribe"], headers["List-Unsubscribe"])
	})

	t.Run("sendgrid", func(t *testing.T) {
		var path, auth string
		var body map[string]any
		srv := recordingServer(t, http.StatusAccepted, &path, &auth, &body)
		defer srv.Close()

		require.NoError(t, NewSendGrid("SG.test", srv.URL, nil).Send(context.Background(), msg))
		headers := body["headers"].(map[string]any)
		assert.Equal(t, unsubscribeHeaders["List-Unsubscribe"], headers["List-Unsubscribe"])
	})

	t.Run("smtp", func(t *testing.T) {
		raw := string(buildMIME(msg))
		assert.Contains(t, raw, "List-Unsubscribe: <https://standardthought.com/functions/v1/unsubscribe?token=abc>\r\n"+
			"List-Unsubscribe-Post: List-Unsubscribe=One-Click\r\n")
		assert.Less(t, strings.Index(raw, "List-Unsubscribe"), strings.Index(raw, "MIME-Version"))
	})

	t.Run("no headers omitted", func(t *testing.T) {
		var path, auth string
		var body map[string]any
		srv := recordingServer(t, http.StatusOK, &path, &auth, &body)
		defer srv.Close()

		require.NoError(t, NewResend("re_test", srv.URL, nil).Send(context.Background(), testMsg))
		assert.NotContains(t, body, "headers")
	})
}

func TestBuildMIMEFoldsHeaderValues(t *testing.T) {
	msg := testMsg
	msg.Headers = map[string]string{"List-Unsubscribe": "<https://x>\r\nBcc: victim@example.com"}

	raw := string(buildMIME(msg))
	assert.NotContains(t, raw, "\r\nBcc:")
	assert.Contains(t, raw, "List-Unsubscribe: <https://x>Bcc: victim@example.com\r\n")
}

func TestSMTPSend_CancelledContext(t *testing.T) {
	s := NewSMTP(SMTPConfig{Host: "mail.example.com", Port: 25})
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("sendMail should not be called")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, testMsg), context.Canceled)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr string
	}{
		{"resend", config.Config{EmailProvider: "resend", ResendKey: "k"}, ""},
		{"resend without key", config.Config{EmailProvider: "resend"}, "RESEND_API_KEY"},
		{"sendgrid", config.Config{EmailProvider: "sendgrid", SendGridKey: "k"}, ""},
		{"sendgrid without key", config.Config{EmailProvider: "sendgrid"}, "SENDGRID_API_KEY"},
		{"smtp", config.Config{EmailProvider: "smtp", SMTPHost: "h", SMTPPort: 25}, ""},
		{"smtp without host", config.Config{EmailProvider: "smtp"}, "SMTP_HOST"},
		{"unknown", config.Config{EmailProvider: "fax"}, "unknown provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(&tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}
