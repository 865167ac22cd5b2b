package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func b64(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

func TestBuildQuery(t *testing.T) {
	got := BuildQuery([]string{"a@x.test", " ", "b@y.test"}, time.Unix(1700000000, 0))
	want := "(from:a@x.test OR from:b@y.test) after:1700000000"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDecodeData_Latin1Fallback(t *testing.T) {
	raw := []byte{'c', 'a', 'f', 0xe9}
	got, ok := decodeData(base64.RawURLEncoding.EncodeToString(raw))
	if !ok || got != "café" {
		t.Fatalf("unexpected %q %v", got, ok)
	}
	if _, ok := decodeData("!!!"); ok {
		t.Fatalf("expected failure on invalid base64")
	}
}

func TestFromGmail_HTMLFirstNested(t *testing.T) {
	m := &gmail.Message{
		Id:           "m1",
		InternalDate: 1700000000000,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "subject", Value: "Daily"},
				{Name: "From", Value: "TLDR <dan@tldr.test>"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("plain https://p.test")}},
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64(`<p>Hello <a href="https://h.test/a">x</a></p>`)}},
				}},
			},
		},
	}
	msg := FromGmail(m)
	if msg.Subject != "Daily" || msg.Sender != "TLDR <dan@tldr.test>" {
		t.Fatalf("headers: %+v", msg)
	}
	if !msg.ReceivedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("date: %v", msg.ReceivedAt)
	}
	if msg.HTML == "" || !strings.Contains(msg.Body, "Hello") || strings.Contains(msg.Body, "<") {
		t.Fatalf("expected normalized html body, got %q", msg.Body)
	}
	if !reflect.DeepEqual(msg.Links, []string{"https://h.test/a"}) {
		t.Fatalf("links: %v", msg.Links)
	}
}

func TestFromGmail_PlainOnlyAndDefaults(t *testing.T) {
	m := &gmail.Message{Id: "m2", Payload: &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: b64("read www.site.test/x now")},
	}}
	msg := FromGmail(m)
	if msg.Subject != "No Subject" || msg.Sender != "Unknown Sender" {
		t.Fatalf("defaults: %+v", msg)
	}
	if msg.HTML != "" || msg.Body != "read www.site.test/x now" {
		t.Fatalf("body: %+v", msg)
	}
	if len(msg.Links) != 1 || msg.Links[0] != "www.site.test/x" {
		t.Fatalf("links: %v", msg.Links)
	}
}

func TestGmail_QueryAndGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			if r.URL.Query().Get("q") != "(from:a) after:1" {
				t.Errorf("unexpected q %q", r.URL.Query().Get("q"))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]string{{"id": "x1"}, {"id": "x2"}}})
		case strings.HasSuffix(r.URL.Path, "/users/me/messages/x1"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "x1",
				"payload": map[string]any{
					"mimeType": "text/html",
					"headers":  []map[string]string{{"name": "Subject", "value": "S"}},
					"body":     map[string]string{"data": b64("<p>hi</p>")},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc, err := gmail.NewService(context.Background(), option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	g := &Gmail{Service: svc}
	ids, err := g.QueryMessages(context.Background(), "(from:a) after:1", 10)
	if err != nil || !reflect.DeepEqual(ids, []string{"x1", "x2"}) {
		t.Fatalf("query: %v %v", ids, err)
	}
	msg, err := g.GetMessage(context.Background(), "x1")
	if err != nil || msg.Subject != "S" || msg.Body != "hi" {
		t.Fatalf("get: %+v %v", msg, err)
	}
	if _, err := g.GetMessage(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for missing message")
	}
}

func TestLoadToken_Missing(t *testing.T) {
	if _, err := loadToken(filepath.Join(t.TempDir(), "token.json")); err != ErrNoToken {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "mail.json")
	data := `[
	 {"id":"1","subject":"old","sender":"a@x.test","date":"2025-01-01T00:00:00Z","body":"old"},
	 {"id":"2","subject":"new","sender":"News <a@x.test>","date":"2025-02-01T00:00:00Z","html":"<p>see https://n.test/1</p>"},
	 {"id":"3","subject":"other","sender":"c@z.test","date":"2025-02-02T00:00:00Z","body":"x"}
	]`
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	f := &FileSource{Path: p}
	since := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	ids, err := f.QueryMessages(context.Background(), BuildQuery([]string{"a@x.test"}, since), 0)
	if err != nil || !reflect.DeepEqual(ids, []string{"2"}) {
		t.Fatalf("query: %v %v", ids, err)
	}
	msg, err := f.GetMessage(context.Background(), "2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if msg.Body != "see https://n.test/1" || len(msg.Links) != 1 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if _, err := f.GetMessage(context.Background(), "9"); err == nil {
		t.Fatalf("expected not found")
	}
	if _, err := (&FileSource{}).QueryMessages(context.Background(), "", 0); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
