/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"net"

	"github.com/mdlayher/raw"
	"golang.org/x/net/bpf"
)

// meshEtherType is the ethertype PANN frames are carried under on the
// mesh interface; distinct from ETHER_IPv4/ETHER_IPv6 used elsewhere.
const meshEtherType = 0x8fc7

// Transport binds a raw L2 socket to the mesh interface and wires the
// engine's send/receive callback to it (spec §6: "Engine ← transport
// callback"). Grounded on the teacher's declared but unexercised
// mdlayher/raw dependency: this is that dependency's first real caller in
// this module, giving PANN frames the raw L2 delivery the wire format
// (§6) assumes.
type Transport struct {
	conn   *raw.Conn
	iface  *net.Interface
	engine *Engine
	bufs   *BufPool
	stats  StatSink

	stop chan struct{}
	done chan struct{}
}

func NewTransport(ifaceName string, engine *Engine, stats StatSink) (*Transport, error) {

	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}

	conn, err := raw.ListenPacket(ifi, meshEtherType, nil)
	if err != nil {
		return nil, err
	}

	if stats == nil {
		stats = NullStatSink{}
	}

	if err := installEtherTypeFilter(conn, meshEtherType); err != nil {
		log.err("transport: could not install BPF filter, relying on socket ethertype binding: %v", err)
	}

	t := &Transport{
		conn:   conn,
		iface:  ifi,
		engine: engine,
		bufs:   NewBufPool(ifi.MTU, 64, stats),
		stats:  stats,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	engine.SetSendPacketCallback(t.send)

	return t, nil
}

// installEtherTypeFilter attaches a classic BPF program admitting only
// frames whose ethertype (offset 12) matches ours, so the raw socket
// isn't woken for every other L2 frame on the interface.
func installEtherTypeFilter(conn *raw.Conn, etherType uint16) error {

	prog, err := bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(etherType), SkipFalse: 1},
		bpf.RetConstant{Val: 0x40000},
		bpf.RetConstant{Val: 0},
	})
	if err != nil {
		return err
	}

	rawProg := make([]bpf.RawInstruction, len(prog))
	copy(rawProg, prog)
	return conn.SetBPF(rawProg)
}

func (t *Transport) Start() {
	go t.recvLoop()
}

func (t *Transport) Stop() {
	close(t.stop)
	t.conn.Close()
	<-t.done
}

func (t *Transport) recvLoop() {

	defer close(t.done)

	for {
		select {
		case <-t.stop:
			return
		default:
		}

		buf := t.bufs.Get()
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			t.bufs.Put(buf)
			select {
			case <-t.stop:
				return
			default:
			}
			log.err("transport: read failed: %v", err)
			continue
		}

		sa, err := macFromHardwareAddr(addr)
		if err != nil {
			t.bufs.Put(buf)
			continue
		}

		t.engine.ReceivePacket(sa, buf[:n])
		t.bufs.Put(buf)
	}
}

func (t *Transport) send(dst MAC, frame []byte) {

	addr := &raw.Addr{HardwareAddr: net.HardwareAddr(dst[:])}
	if _, err := t.conn.WriteTo(frame, addr); err != nil {
		t.stats.Count("transport.write_error", 1)
		log.err("transport: write to %v failed: %v", dst, err)
	}
}

func macFromHardwareAddr(addr net.Addr) (MAC, error) {

	rawAddr, ok := addr.(*raw.Addr)
	if !ok {
		return MACFromSlice([]byte(addr.String()))
	}
	return MACFromSlice([]byte(rawAddr.HardwareAddr))
}
