package netlinkw

import (
	"encoding/binary"
	"fmt"

	log "github.com/netmirage/netmirage-core/pkg/minilog"
	"golang.org/x/sys/unix"
)

// Socket is a single AF_NETLINK/NETLINK_ROUTE socket plus the receive
// buffer used to demultiplex responses on it. Each namespace context opened
// by internal/kernel opens its own Socket, so a worker process holds one per
// open namespace; nothing about a Socket is safe to use from more than one
// goroutine concurrently.
type Socket struct {
	fd  int
	seq uint32

	rbuf []byte
}

// OpenSocket creates and binds a new rtnetlink socket.
func OpenSocket() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, fmt.Errorf("netlinkw: socket: %w", err)
	}

	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("netlinkw: bind: %w", err)
	}

	return &Socket{fd: fd, rbuf: make([]byte, 64*1024)}, nil
}

// Close releases the underlying socket.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// NextSeq returns the next sequence number to use for a request.
func (s *Socket) NextSeq() uint32 {
	s.seq++
	return s.seq
}

// Handler is invoked once per non-control data frame received for a
// request. Returning an error aborts Send's receive loop.
type Handler func(msgType uint16, data []byte) error

// Send transmits the message built by b. If wantResponse is false (a
// message sent with NLM_F_ACK unset and no caller interest in the reply),
// Send returns immediately after the write. Otherwise it loops on recvmsg:
// NLMSG_NOOP frames are ignored; frames whose sequence does not match seq
// are ignored (stale traffic from a previous request); NLMSG_ERROR with a
// non-zero payload becomes an error carrying the (negated) kernel errno;
// multipart dumps continue until NLMSG_DONE. Each data frame is passed to
// handler, if supplied.
func (s *Socket) Send(b *Builder, seq uint32, wantResponse bool, handler Handler) error {
	msg, err := b.Bytes()
	if err != nil {
		return err
	}

	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Sendto(s.fd, msg, 0, sa); err != nil {
		return fmt.Errorf("netlinkw: sendto: %w", err)
	}

	if !wantResponse {
		return nil
	}

	for {
		n, _, err := unix.Recvfrom(s.fd, s.rbuf, 0)
		if err != nil {
			if err == unix.ENOBUFS {
				log.Warn("netlinkw: recv ENOBUFS, kernel buffer exhausted; retrying")
				continue
			}
			return fmt.Errorf("netlinkw: recvfrom: %w", err)
		}

		done, err := s.demux(s.rbuf[:n], seq, handler)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// demux walks the frames in buf, dispatching data frames matching seq to
// handler. Returns done=true once an ack or NLMSG_DONE terminates the
// exchange for seq.
func (s *Socket) demux(buf []byte, seq uint32, handler Handler) (bool, error) {
	for len(buf) >= nlmsgHdrLen {
		msgLen := binary.LittleEndian.Uint32(buf[0:4])
		msgType := binary.LittleEndian.Uint16(buf[4:6])
		msgSeq := binary.LittleEndian.Uint32(buf[8:12])

		if msgLen < nlmsgHdrLen || int(msgLen) > len(buf) {
			return false, fmt.Errorf("netlinkw: malformed message length %d", msgLen)
		}

		payload := buf[nlmsgHdrLen:msgLen]
		next := buf[align(int(msgLen)):]

		switch {
		case msgType == unix.NLMSG_NOOP:
			// ignored

		case msgSeq != seq:
			// stale traffic for a different request; ignored

		case msgType == unix.NLMSG_ERROR:
			if len(payload) < 4 {
				return false, fmt.Errorf("netlinkw: truncated NLMSG_ERROR")
			}
			errno := int32(binary.LittleEndian.Uint32(payload[0:4]))
			if errno != 0 {
				return false, fmt.Errorf("netlinkw: kernel error: %w", unix.Errno(-errno))
			}
			return true, nil

		case msgType == unix.NLMSG_DONE:
			return true, nil

		default:
			if handler != nil {
				if err := handler(msgType, payload); err != nil {
					return false, err
				}
			}
		}

		buf = next
	}
	return false, nil
}
