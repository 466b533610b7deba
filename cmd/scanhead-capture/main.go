// Command scanhead-capture records scan-head command and status traffic to
// a pcap file for offline diagnosis, independent of the host process.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"

	"scanhead/internal/version"
	"scanhead/internal/wire"
)

func main() {
	iface := flag.String("iface", "eth0", "network interface to capture on")
	out := flag.String("out", "scanhead-capture.pcap", "output pcap file path")
	snaplen := flag.Int("snaplen", 65535, "max bytes captured per packet")
	decode := flag.Bool("decode", true, "log a decoded summary of each recognized wire message")
	flag.Parse()

	log.Printf("scanhead-capture %s (%s)", version.Version, version.GitSHA)

	handle, err := pcap.OpenLive(*iface, int32(*snaplen), true, pcap.BlockForever)
	if err != nil {
		log.Fatalf("open interface %s: %v", *iface, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp and port %d", wire.CommandPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		log.Printf("warning: could not install BPF filter %q: %v (capturing all traffic)", filter, err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create %s: %v", *out, err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(uint32(*snaplen), handle.LinkType()); err != nil {
		log.Fatalf("write pcap header: %v", err)
	}

	log.Printf("capturing on %s, writing to %s (ctrl-c to stop)", *iface, *out)
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	count := 0
	for packet := range source.Packets() {
		if err := w.WritePacket(packet.Metadata().CaptureInfo, packet.Data()); err != nil {
			log.Printf("write packet: %v", err)
			continue
		}
		count++

		if *decode {
			logDecoded(packet)
		}
		if count%1000 == 0 {
			log.Printf("captured %d packets", count)
		}
	}
}

func logDecoded(packet gopacket.Packet) {
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok || len(udp.Payload) == 0 {
		return
	}
	d, err := wire.DecodeAny(udp.Payload)
	if err != nil {
		return
	}
	log.Printf("[%s] %s %s", time.Now().Format(time.RFC3339), d.Kind, d.Summary)
}
