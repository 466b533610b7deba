package session

import (
	"context"
	"net"
	"sync"
	"time"

	"scanhead/internal/geometry"
	"scanhead/internal/network"
	"scanhead/internal/profile"
	"scanhead/internal/wire"
)

// maxCameras is the maximum number of cameras a scan head carries.
const maxCameras = 2

// Head is one managed scan head: its identity, learned network address,
// configuration, per-camera alignment and window, and the receiver/queue
// pair C4 and C5 provide. Its mutable fields are guarded by mu; the
// receiver's own state is guarded separately inside *network.Receiver.
type Head struct {
	Serial uint32
	UserID uint32
	WireID uint8

	receiver  *network.Receiver
	queue     *profile.Queue
	assembler *profile.Assembler

	mu              sync.Mutex
	ip              net.IP
	productType     uint16
	config          HeadConfig
	alignments      [maxCameras]geometry.Alignment
	window          *geometry.Window
	dataFormat      DataFormat
	requestSequence uint8
}

// Alignment implements profile.AlignmentSource for this head's assembler.
func (h *Head) Alignment(cameraID uint8) geometry.Alignment {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(cameraID) >= maxCameras {
		return geometry.NewAlignment(0, 0, 0, false)
	}
	return h.alignments[cameraID]
}

func newHead(serial, userID uint32, wireID uint8, logger interface {
	Printf(string, ...any)
}) *Head {
	h := &Head{Serial: serial, UserID: userID, WireID: wireID, config: DefaultHeadConfig()}
	h.queue = profile.NewQueue(profile.DefaultCapacity)
	h.assembler = profile.NewAssembler(h)
	h.receiver = network.NewReceiver(wireID, h.assembler, h.queue, nil, nil)
	return h
}

func (h *Head) startReceiver(ctx context.Context) {
	h.queue.Reopen()
	go h.receiver.Start(ctx)
	h.receiver.WaitForState(network.StateRunning, time.Second)
}

func (h *Head) setAlignment(cameraID uint8, a geometry.Alignment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(cameraID) < maxCameras {
		h.alignments[cameraID] = a
	}
}

func (h *Head) setWindow(w geometry.Window) {
	h.mu.Lock()
	defer h.mu.Unlock()
	win := w
	h.window = &win
}

func (h *Head) getWindow() (geometry.Window, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.window == nil {
		return geometry.Window{}, false
	}
	return *h.window, true
}

func (h *Head) setConfig(cfg HeadConfig) { h.mu.Lock(); h.config = cfg; h.mu.Unlock() }

func (h *Head) getConfig() HeadConfig { h.mu.Lock(); defer h.mu.Unlock(); return h.config }

func (h *Head) setDataFormat(f DataFormat) { h.mu.Lock(); h.dataFormat = f; h.mu.Unlock() }

func (h *Head) getDataFormat() DataFormat { h.mu.Lock(); defer h.mu.Unlock(); return h.dataFormat }

func (h *Head) setIP(ip net.IP) { h.mu.Lock(); h.ip = ip; h.mu.Unlock() }

func (h *Head) getIP() net.IP { h.mu.Lock(); defer h.mu.Unlock(); return h.ip }

func (h *Head) setProductType(p uint16) { h.mu.Lock(); h.productType = p; h.mu.Unlock() }

func (h *Head) nextRequestSequence() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requestSequence++
	return h.requestSequence
}

func (h *Head) status() (wire.StatusMessage, bool, time.Time) {
	return h.receiver.Status()
}

func (h *Head) commandAddr() *net.UDPAddr {
	ip := h.getIP()
	if ip == nil {
		return nil
	}
	return &net.UDPAddr{IP: ip, Port: wire.CommandPort}
}
