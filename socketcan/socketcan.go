//go:build linux

// Package socketcan implements a j1939.Port directly against a Linux
// CAN network interface (a physical can0, or a vcan virtual interface
// for testing) using raw AF_CAN sockets.
package socketcan

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vantage-iot/j1939"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Move frames through the kernel's native CAN stack: open
 *		an AF_CAN/SOCK_RAW/CAN_RAW socket and bind it to an
 *		interface by index. Uses the plain (non-ring-buffer) raw
 *		socket, sufficient for J1939's frame rates.
 *
 * Description:	The kernel's struct can_frame is 16 bytes: a 4-byte
 *		little-endian ID (bit 31 = CAN_EFF_FLAG, set here since
 *		this engine is always 29-bit extended), 1 byte DLC, 3
 *		bytes padding, and 8 bytes of data.
 *
 *---------------------------------------------------------------*/

const (
	canEFFFlag  = 0x80000000
	canEFFMask  = 0x1FFFFFFF
	frameWireSz = 16
)

// Port is a j1939.Port backed by a CAN_RAW socket bound to one
// interface.
type Port struct {
	fd int
}

// Open binds a new raw CAN socket to the named interface (e.g. "can0"
// or a vcan interface such as "vcan0").
func Open(ifname string) (*Port, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("socketcan: lookup interface %s: %w", ifname, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: open raw CAN socket: %w", err)
	}

	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind to %s: %w", ifname, err)
	}

	return &Port{fd: fd}, nil
}

func (p *Port) Init() error {
	// Non-blocking reads are achieved via a short receive timeout
	// rather than O_NONBLOCK, so GetRx degrades to "nothing queued"
	// instead of needing a separate poll/epoll loop.
	tv := unix.Timeval{Sec: 0, Usec: 1000}
	return unix.SetsockoptTimeval(p.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func (p *Port) Deinit() error {
	return unix.Close(p.fd)
}

func (p *Port) TxFreeLevel() uint32 {
	// The kernel's socket send buffer isn't introspectable without a
	// platform-specific ioctl this engine doesn't need; report a
	// generous constant and let AddTx's error return signal backpressure.
	return 16
}

func (p *Port) RxFillLevel() uint32 {
	// SocketCAN exposes no portable "frames queued" count either;
	// GetRx's own StatusBlocked return is the only backpressure signal
	// available, so callers should simply call GetRx until blocked.
	return 1
}

func (p *Port) AddTx(f j1939.Frame) j1939.Status {
	buf := encodeFrame(f)
	if _, err := unix.Write(p.fd, buf); err != nil {
		return j1939.StatusError
	}
	return j1939.StatusOK
}

func (p *Port) GetRx() (j1939.Frame, j1939.Status) {
	buf := make([]byte, frameWireSz)
	n, err := unix.Read(p.fd, buf)
	if err != nil || n != frameWireSz {
		return j1939.Frame{}, j1939.StatusBlocked
	}
	return decodeFrame(buf), j1939.StatusOK
}

func (p *Port) GetTick() uint64 {
	return uint64(time.Now().UnixMilli())
}

func encodeFrame(f j1939.Frame) []byte {
	buf := make([]byte, frameWireSz)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(f.ID)&canEFFMask|canEFFFlag)
	buf[4] = f.Length
	copy(buf[8:8+f.Length], f.Data[:f.Length])
	return buf
}

func decodeFrame(buf []byte) j1939.Frame {
	id := binary.LittleEndian.Uint32(buf[0:4]) &^ canEFFFlag
	dlc := buf[4]
	if dlc > 8 {
		dlc = 8
	}
	f := j1939.Frame{ID: j1939.Identifier(id & canEFFMask), Length: dlc}
	copy(f.Data[:dlc], buf[8:8+dlc])
	return f
}
