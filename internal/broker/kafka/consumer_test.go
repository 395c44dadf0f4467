package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/broker/messages"
)

type fakeReader struct {
	msgs      []kafka.Message
	err       error
	i         int
	committed int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.i < len(r.msgs) {
		m := r.msgs[r.i]
		r.i++
		return m, nil
	}
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	return kafka.Message{}, errors.New("eof")
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed += len(msgs)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_Consume_DecodesAndCommitsOnSuccess(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{{
			Key:   []byte("C1"),
			Value: []byte(`{"kind":"location","consignment_id":"C1","lat":12.9,"lng":77.5}`),
		}},
		err: errors.New("stop"),
	}
	c := newConsumerWithReader(fr)

	var got messages.ConsignmentTelemetry
	err := c.Consume(context.Background(), func(m messages.ConsignmentTelemetry) error {
		got = m
		return nil
	})
	require.Error(t, err) // поток кончился
	require.Equal(t, messages.TelemetryLocation, got.Kind)
	require.Equal(t, "C1", got.ConsignmentID)
	require.Equal(t, 12.9, got.Latitude)
	require.Equal(t, 1, fr.committed)
}

func TestConsumer_Consume_NoCommitOnHandlerError(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Key: []byte("C1"), Value: []byte(`{"kind":"lifecycle"}`)}}}
	c := newConsumerWithReader(fr)

	want := errors.New("handler failed")
	err := c.Consume(context.Background(), func(messages.ConsignmentTelemetry) error { return want })
	require.ErrorIs(t, err, want)
	require.Zero(t, fr.committed)
}

func TestConsumer_Consume_SkipsAndCommitsUndecodable(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{
			{Key: []byte("C1"), Value: []byte(`{broken`)},
			{Key: []byte("C2"), Value: []byte(`{"kind":"location","consignment_id":"C2"}`)},
		},
		err: errors.New("stop"),
	}
	c := newConsumerWithReader(fr)

	var handled []string
	err := c.Consume(context.Background(), func(m messages.ConsignmentTelemetry) error {
		handled = append(handled, m.ConsignmentID)
		return nil
	})
	require.Error(t, err)
	require.Equal(t, []string{"C2"}, handled, "broken message never reaches the handler")
	require.Equal(t, 2, fr.committed, "broken message is committed so the stream moves on")
}

func TestNewConsumer_Close(t *testing.T) {
	c := NewConsumer([]string{"localhost:0"}, "consignment.telemetry", "courier-agent")
	require.NotNil(t, c)
	require.NoError(t, c.Close())
}
