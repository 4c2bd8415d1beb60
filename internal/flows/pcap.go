package flows

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/flowguard/flowguard/internal/models"
)

type flowKey struct {
	a, b         string
	aPort, bPort uint16
	proto        string
}

type flowState struct {
	src, dst         string
	srcPort, dstPort uint16
	proto            string
	first, last      time.Time
	sentBytes        int64
	recvBytes        int64
	sentPackets      int64
	recvPackets      int64
	synCount         int64
}

// canonical orders the endpoints so both directions share one key.
func canonical(src, dst string, sp, dp uint16, proto string) flowKey {
	if src < dst || (src == dst && sp <= dp) {
		return flowKey{a: src, b: dst, aPort: sp, bPort: dp, proto: proto}
	}
	return flowKey{a: dst, b: src, aPort: dp, bPort: sp, proto: proto}
}

// ReadPCAP aggregates a classic pcap capture into bidirectional flows. The
// endpoint that sent the first packet of a flow is its source.
func ReadPCAP(r io.Reader) ([]models.FlowRecord, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open pcap: %w", err)
	}
	return aggregate(pr, pr.LinkType())
}

// ReadPCAPNG aggregates a pcapng capture.
func ReadPCAPNG(r io.Reader) ([]models.FlowRecord, error) {
	nr, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return nil, fmt.Errorf("open pcapng: %w", err)
	}
	return aggregate(nr, nr.LinkType())
}

func aggregate(src gopacket.PacketDataSource, link layers.LinkType) ([]models.FlowRecord, error) {
	var (
		order []flowKey
		state = make(map[flowKey]*flowState)
	)
	for {
		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("read packet: %w", err)
		}
		pkt := gopacket.NewPacket(data, link, gopacket.NoCopy)

		srcIP, dstIP, ok := addresses(pkt)
		if !ok {
			continue
		}
		proto, sp, dp, syn := transport(pkt)

		size := int64(ci.Length)
		if size == 0 {
			size = int64(len(data))
		}

		key := canonical(srcIP, dstIP, sp, dp, proto)
		st, seen := state[key]
		if !seen {
			st = &flowState{src: srcIP, dst: dstIP, srcPort: sp, dstPort: dp, proto: proto, first: ci.Timestamp}
			state[key] = st
			order = append(order, key)
		}
		if ci.Timestamp.After(st.last) {
			st.last = ci.Timestamp
		}
		if srcIP == st.src && sp == st.srcPort {
			st.sentBytes += size
			st.sentPackets++
		} else {
			st.recvBytes += size
			st.recvPackets++
		}
		if syn {
			st.synCount++
		}
	}

	out := make([]models.FlowRecord, 0, len(order))
	for _, k := range order {
		out = append(out, state[k].record())
	}
	return out, nil
}

func (st *flowState) record() models.FlowRecord {
	rec := models.FlowRecord{
		SourceIP:        st.src,
		DestinationIP:   st.dst,
		SourcePort:      int(st.srcPort),
		DestinationPort: int(st.dstPort),
		Protocol:        st.proto,
		BytesSent:       st.sentBytes,
		BytesReceived:   st.recvBytes,
		Packets:         st.sentPackets + st.recvPackets,
	}
	if !st.last.IsZero() && st.last.After(st.first) {
		rec.Duration = st.last.Sub(st.first).Seconds()
	}
	rec.Features.Set("packets_sent", models.Number(float64(st.sentPackets)))
	rec.Features.Set("packets_received", models.Number(float64(st.recvPackets)))
	if st.proto == "TCP" {
		rec.Features.Set("syn_count", models.Number(float64(st.synCount)))
	}
	return rec
}

func addresses(pkt gopacket.Packet) (src, dst string, ok bool) {
	if l := pkt.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		return ipString(ip.SrcIP), ipString(ip.DstIP), true
	}
	if l := pkt.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		return ipString(ip.SrcIP), ipString(ip.DstIP), true
	}
	return "", "", false
}

func transport(pkt gopacket.Packet) (proto string, sp, dp uint16, syn bool) {
	switch {
	case pkt.Layer(layers.LayerTypeTCP) != nil:
		tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		return "TCP", uint16(tcp.SrcPort), uint16(tcp.DstPort), tcp.SYN && !tcp.ACK
	case pkt.Layer(layers.LayerTypeUDP) != nil:
		udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		return "UDP", uint16(udp.SrcPort), uint16(udp.DstPort), false
	case pkt.Layer(layers.LayerTypeICMPv4) != nil, pkt.Layer(layers.LayerTypeICMPv6) != nil:
		return "ICMP", 0, 0, false
	}
	if l := pkt.Layer(layers.LayerTypeIPv4); l != nil {
		return l.(*layers.IPv4).Protocol.String(), 0, 0, false
	}
	if l := pkt.Layer(layers.LayerTypeIPv6); l != nil {
		return l.(*layers.IPv6).NextHeader.String(), 0, 0, false
	}
	return "OTHER", 0, 0, false
}

func ipString(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}
