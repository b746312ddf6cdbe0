package aer

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// UDP event word layout: x in bits 0-14, y in bits 16-30, polarity in bit 31.
const (
	udpWordSize  = 4
	udpMaskCoord = 0x7FFF
	udpShiftY    = 16
	udpShiftP    = 31

	// DefaultUDPPort is the port event packets are sent to when none is configured.
	DefaultUDPPort = 7777
)

const pcapngMagic = 0x0A0D0D0A

// packetSource is the subset shared by pcapgo.Reader and pcapgo.NgReader.
type packetSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// ReadPCAP extracts events from UDP datagrams captured in a pcap or pcapng
// file. Only packets addressed to port are decoded; port 0 accepts any. The
// capture timestamp of each packet, in microseconds since the first packet,
// becomes the timestamp of every event in it. A zero width or height is
// inferred from the events.
func ReadPCAP(r io.Reader, port int, width, height uint16) (*Stream, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap magic: %w", err)
	}

	var src packetSource
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap stream: %w", err)
	}

	var (
		events  []Event
		base    int64
		started bool
	)
	for packetCount := 0; ; packetCount++ {
		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read packet %d: %w", packetCount, err)
		}

		packet := gopacket.NewPacket(data, src.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}
		if port != 0 && int(udp.DstPort) != port {
			continue
		}

		micros := ci.Timestamp.UnixMicro()
		if !started {
			base, started = micros, true
		}
		if micros < base {
			return nil, fmt.Errorf("packet %d captured before first packet: %w", packetCount, ErrUnsorted)
		}
		events = appendUDPEvents(events, udp.Payload, uint64(micros-base))
	}

	if width == 0 || height == 0 {
		w, h, err := inferGeometry(events)
		if err != nil {
			return nil, err
		}
		width, height = w, h
	}
	return &Stream{Width: width, Height: height, Events: events}, nil
}

func appendUDPEvents(events []Event, payload []byte, t uint64) []Event {
	for off := 0; off+udpWordSize <= len(payload); off += udpWordSize {
		w := binary.LittleEndian.Uint32(payload[off:])
		events = append(events, Event{
			T:        t,
			X:        uint16(w & udpMaskCoord),
			Y:        uint16((w >> udpShiftY) & udpMaskCoord),
			Polarity: w>>udpShiftP != 0,
		})
	}
	return events
}

// EncodeUDPPayload packs events into the UDP word format.
func EncodeUDPPayload(events []Event) []byte {
	buf := make([]byte, udpWordSize*len(events))
	for i, e := range events {
		w := uint32(e.X)&udpMaskCoord | (uint32(e.Y)&udpMaskCoord)<<udpShiftY
		if e.Polarity {
			w |= 1 << udpShiftP
		}
		binary.LittleEndian.PutUint32(buf[i*udpWordSize:], w)
	}
	return buf
}

// WritePCAP records a stream as an Ethernet/IPv4/UDP capture, one packet
// per distinct timestamp, addressed to port. Timestamps are offset from
// the Unix epoch.
func WritePCAP(w io.Writer, s *Stream, port int) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 100, 201),
		DstIP:    net.IPv4(192, 168, 100, 1),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(port), DstPort: layers.UDPPort(port)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("failed to set checksum layer: %w", err)
	}

	// Keep each datagram under a typical MTU.
	const maxWordsPerPacket = 256
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	for start := 0; start < len(s.Events); {
		end := start + 1
		for end < len(s.Events) && s.Events[end].T == s.Events[start].T && end-start < maxWordsPerPacket {
			end++
		}

		buf := gopacket.NewSerializeBuffer()
		payload := gopacket.Payload(EncodeUDPPayload(s.Events[start:end]))
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, payload); err != nil {
			return fmt.Errorf("failed to serialize packet: %w", err)
		}
		data := buf.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     time.UnixMicro(int64(s.Events[start].T)).UTC(),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := pw.WritePacket(ci, data); err != nil {
			return fmt.Errorf("failed to write packet: %w", err)
		}
		start = end
	}
	return nil
}
