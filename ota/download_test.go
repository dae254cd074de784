package ota

import (
	"bytes"
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"
	"github.com/plgd-dev/go-coap/v2/udp/message/pool"

	"github.com/edgefleet/coap-sdk/bootloader"
	"github.com/edgefleet/coap-sdk/config"
	"github.com/edgefleet/coap-sdk/credential"
	"github.com/edgefleet/coap-sdk/internal/engine"
)

type fakeDriver struct {
	blocks [][]byte
}

func (f *fakeDriver) IsPendingVerify(ctx context.Context) (bool, bootloader.ComponentDesc, error) {
	return false, bootloader.ComponentDesc{}, nil
}
func (f *fakeDriver) Rollback(ctx context.Context) error                    { return nil }
func (f *fakeDriver) Reboot(ctx context.Context) error                      { return nil }
func (f *fakeDriver) CancelRollback(ctx context.Context) error              { return nil }
func (f *fakeDriver) IsCandidateValid(ctx context.Context, d bootloader.ComponentDesc) (bool, error) {
	return false, nil
}
func (f *fakeDriver) HandleBlock(ctx context.Context, d bootloader.ComponentDesc, offset int64, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.blocks = append(f.blocks, cp)
	return nil
}
func (f *fakeDriver) PostDownload(ctx context.Context, d bootloader.ComponentDesc) error { return nil }
func (f *fakeDriver) Validate(ctx context.Context, d bootloader.ComponentDesc) error     { return nil }
func (f *fakeDriver) ChangeBootImage(ctx context.Context, d bootloader.ComponentDesc) error {
	return nil
}
func (f *fakeDriver) End(ctx context.Context, d bootloader.ComponentDesc) error { return nil }

var _ bootloader.Driver = (*fakeDriver)(nil)

func testUpdater(t *testing.T, driver bootloader.Driver) (*Updater, *fakeSocket) {
	t.Helper()
	cfg := config.Default()
	cfg.BlockwiseDownloadMaxBlockSize = 16
	cfg.ResponseTimeout = 2 * time.Second
	cfg.KeepaliveInterval = time.Hour

	dialer := newFakeDialer()
	client := engine.New(cfg, credential.NewPSK("id", "secret"), engine.WithDialer(dialer))
	client.Start()
	t.Cleanup(client.Destroy)

	var sock *fakeSocket
	select {
	case sock = <-dialer.dialed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dial")
	}

	u := &Updater{engine: client, driver: driver, cfg: cfg}
	return u, sock
}

func buildBlockResponse(t *testing.T, reqData []byte, blockIndex uint32, szx uint32, more bool, payload []byte) []byte {
	t.Helper()
	req := pool.AcquireMessage(context.Background())
	if _, err := req.Unmarshal(reqData); err != nil {
		t.Fatalf("Unmarshal request: %v", err)
	}
	defer pool.ReleaseMessage(req)

	resp := pool.AcquireMessage(context.Background())
	defer pool.ReleaseMessage(resp)
	resp.SetType(udpmessage.Acknowledgement)
	resp.SetCode(codes.Content)
	resp.SetMessageID(req.MessageID())
	resp.SetToken(req.Token())
	resp.SetBody(bytes.NewReader(payload))
	resp.SetContentFormat(message.AppOctets)
	resp.SetBlock2(blockIndex, more, szx)

	data, err := resp.Marshal()
	if err != nil {
		t.Fatalf("Marshal response: %v", err)
	}
	return data
}

func TestDownloadComponentSuccess(t *testing.T) {
	block0 := bytes.Repeat([]byte{0xAA}, 16)
	block1 := []byte{0xBB, 0xBB}
	full := append(append([]byte{}, block0...), block1...)
	sum := sha256.Sum256(full)

	driver := &fakeDriver{}
	u, sock := testUpdater(t, driver)
	comp := Component{Package: "main", Version: "1.0.0", Hash: sum[:], Size: int64(len(full))}

	done := make(chan error, 1)
	go func() { done <- u.downloadComponent(context.Background(), comp) }()

	req0 := <-sock.writes
	sock.push(buildBlockResponse(t, req0, 0, 0, true, block0))

	req1 := <-sock.writes
	sock.push(buildBlockResponse(t, req1, 1, 0, false, block1))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("downloadComponent: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for downloadComponent")
	}

	if len(driver.blocks) != 2 || !bytes.Equal(driver.blocks[0], block0) || !bytes.Equal(driver.blocks[1], block1) {
		t.Fatalf("driver received blocks %v, want [%v %v]", driver.blocks, block0, block1)
	}
}

func TestDownloadComponentIntegrityMismatch(t *testing.T) {
	block0 := bytes.Repeat([]byte{0xCC}, 8)

	driver := &fakeDriver{}
	u, sock := testUpdater(t, driver)
	comp := Component{Package: "main", Version: "1.0.0", Hash: []byte{0, 0, 0, 0}, Size: 8}

	done := make(chan error, 1)
	go func() { done <- u.downloadComponent(context.Background(), comp) }()

	req0 := <-sock.writes
	sock.push(buildBlockResponse(t, req0, 0, 0, true, block0))

	select {
	case err := <-done:
		if _, ok := err.(*IntegrityError); !ok {
			t.Fatalf("downloadComponent error = %v (%T), want *IntegrityError", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for downloadComponent")
	}
}
