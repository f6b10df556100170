package metrics

import (
	"sync"
	"testing"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.RecordReceive(100)
	c.RecordReceive(50)
	c.RecordSend(200)
	c.RecordReceiveError()
	c.RecordSendError()
	c.RecordDecapFailure()
	c.RecordDeliver(80)
	c.RecordPolicyDrop()
	c.RecordHandshakeStart()
	c.RecordHandshakeComplete()
	c.RecordHandshakeFailure()
	c.RecordSessionStart()
	c.RecordSessionReset()

	s := c.Snapshot()
	if s.DatagramsReceived != 2 || s.BytesReceived != 150 {
		t.Errorf("receive counters: %d datagrams, %d bytes", s.DatagramsReceived, s.BytesReceived)
	}
	if s.DatagramsSent != 1 || s.BytesSent != 200 {
		t.Errorf("send counters: %d datagrams, %d bytes", s.DatagramsSent, s.BytesSent)
	}
	if s.ReceiveErrors != 1 || s.SendErrors != 1 || s.DecapFailures != 1 {
		t.Errorf("error counters: %+v", s)
	}
	if s.PacketsDelivered != 1 || s.BytesDelivered != 80 || s.PolicyDrops != 1 {
		t.Errorf("delivery counters: %+v", s)
	}
	if s.HandshakesStarted != 1 || s.HandshakesCompleted != 1 || s.HandshakesFailed != 1 {
		t.Errorf("handshake counters: %+v", s)
	}
	if s.SessionsStarted != 1 || s.SessionsReset != 1 {
		t.Errorf("session counters: %+v", s)
	}
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.RecordReceive(1)
				c.RecordSend(1)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.DatagramsReceived != 8000 || s.DatagramsSent != 8000 {
		t.Errorf("lost updates: rx %d, tx %d", s.DatagramsReceived, s.DatagramsSent)
	}
}

func TestSnapshotFields(t *testing.T) {
	c := NewCollector()
	c.RecordReceive(10)

	fields := c.Snapshot().Fields()
	if fields["rx_datagrams"] != uint64(1) {
		t.Errorf("rx_datagrams: %v", fields["rx_datagrams"])
	}
	if fields["rx_bytes"] != uint64(10) {
		t.Errorf("rx_bytes: %v", fields["rx_bytes"])
	}
}
