package main

import (
	"context"
	"embed"
	"errors"
	"io/ioutil"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gbrlsnchs/uuid"
	"golang.org/x/time/rate"

	"github.com/fenwren/websock"
)

//go:embed index.html
var assets embed.FS

// chatServer enables broadcasting to a set of subscribers.
type chatServer struct {
	// subscriberMessageBuffer controls the max number
	// of messages that can be queued for a subscriber
	// before it is kicked.
	subscriberMessageBuffer int

	// publishLimiter controls the rate limit applied to the publish endpoint.
	publishLimiter *rate.Limiter

	// logf controls where logs are sent.
	logf func(f string, v ...interface{})

	// completions, when non-nil, answers messages prefixed with "/bot ".
	completions *completionClient

	serveMux http.ServeMux

	subscribersMu sync.Mutex
	subscribers   map[*subscriber]struct{}
}

func newChatServer() *chatServer {
	cs := &chatServer{
		subscriberMessageBuffer: 16,
		logf:                    log.Printf,
		subscribers:             make(map[*subscriber]struct{}),
		publishLimiter:          rate.NewLimiter(rate.Every(time.Millisecond*100), 8),
	}
	cs.serveMux.Handle("/", http.FileServer(http.FS(assets)))
	cs.serveMux.HandleFunc("/subscribe", cs.subscribeHandler)
	cs.serveMux.HandleFunc("/publish", cs.publishHandler)

	return cs
}

// subscriber represents one subscribed connection.
// Messages are sent on the msgs channel and if the client cannot keep up
// with the messages, closeSlow is called.
type subscriber struct {
	id        string
	msgs      chan []byte
	closeSlow func()
}

func (cs *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cs.serveMux.ServeHTTP(w, r)
}

// subscribeHandler accepts the upgrade and then subscribes the connection
// to all future messages.
func (cs *chatServer) subscribeHandler(w http.ResponseWriter, r *http.Request) {
	err := cs.subscribe(w, r)
	if errors.Is(err, context.Canceled) {
		return
	}
	if websock.CloseStatus(err) == websock.StatusNormalClosure ||
		websock.CloseStatus(err) == websock.StatusGoingAway {
		return
	}
	if err != nil {
		cs.logf("%v", err)
	}
}

// publishHandler reads the request body with a limit of 8192 bytes and then
// publishes the received message.
func (cs *chatServer) publishHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	body := http.MaxBytesReader(w, r.Body, 8192)
	msg, err := ioutil.ReadAll(body)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
		return
	}

	cs.publish(r.Context(), msg)

	w.WriteHeader(http.StatusAccepted)
}

// subscribe subscribes the given connection to all broadcast messages.
//
// Inbound events are drained in a separate goroutine so pings keep getting
// answered and a dropped or closed connection cancels the subscription.
func (cs *chatServer) subscribe(w http.ResponseWriter, r *http.Request) error {
	c, err := websock.Accept(w, r, nil)
	if err != nil {
		return err
	}
	defer c.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id, err := uuid.GenerateV4(nil)
	if err != nil {
		return err
	}

	s := &subscriber{
		id:   id.String(),
		msgs: make(chan []byte, cs.subscriberMessageBuffer),
	}
	s.closeSlow = func() {
		cs.logf("kicking slow subscriber %v", s.id)
		c.Close(websock.StatusPolicyViolation, "connection too slow to keep up with messages")
	}
	cs.addSubscriber(s)
	defer cs.deleteSubscriber(s)

	readErr := make(chan error, 1)
	go func() {
		defer cancel()
		for {
			ev, err := c.Next(ctx)
			if err != nil {
				readErr <- err
				return
			}
			if ce, ok := ev.(websock.CloseEvent); ok {
				readErr <- websock.CloseError{Code: ce.Code, Reason: ce.Reason}
				return
			}
		}
	}()

	for {
		select {
		case msg := <-s.msgs:
			err := writeTimeout(ctx, time.Second*5, c, msg)
			if err != nil {
				return err
			}
		case <-ctx.Done():
			select {
			case err := <-readErr:
				return err
			default:
				return ctx.Err()
			}
		}
	}
}

// publish publishes the msg to all subscribers.
// It never blocks and so messages to slow subscribers are dropped.
func (cs *chatServer) publish(ctx context.Context, msg []byte) {
	cs.subscribersMu.Lock()
	defer cs.subscribersMu.Unlock()

	cs.publishLimiter.Wait(ctx)

	for s := range cs.subscribers {
		select {
		case s.msgs <- msg:
		default:
			go s.closeSlow()
		}
	}

	if cs.completions != nil && strings.HasPrefix(string(msg), "/bot ") {
		go cs.completeAndPublish(strings.TrimPrefix(string(msg), "/bot "))
	}
}

// completeAndPublish asks the completion endpoint to answer prompt and
// broadcasts the answer as a bot message.
func (cs *chatServer) completeAndPublish(prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	text, err := cs.completions.complete(ctx, prompt)
	if err != nil {
		cs.logf("completion failed: %v", err)
		return
	}

	cs.publish(ctx, []byte("bot: "+text))
}

// addSubscriber registers a subscriber.
func (cs *chatServer) addSubscriber(s *subscriber) {
	cs.subscribersMu.Lock()
	cs.subscribers[s] = struct{}{}
	cs.subscribersMu.Unlock()
}

// deleteSubscriber deletes the given subscriber.
func (cs *chatServer) deleteSubscriber(s *subscriber) {
	cs.subscribersMu.Lock()
	delete(cs.subscribers, s)
	cs.subscribersMu.Unlock()
}

func writeTimeout(ctx context.Context, timeout time.Duration, c *websock.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.Send(ctx, websock.MessageText, msg)
}
