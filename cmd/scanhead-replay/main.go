// Command scanhead-replay reads a pcap file captured by scanhead-capture (or
// any packet capture of scan-head traffic) and prints a decoded summary of
// every recognized wire message, in capture order.
package main

import (
	"flag"
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"scanhead/internal/version"
	"scanhead/internal/wire"
)

func main() {
	path := flag.String("in", "", "pcap file to replay")
	flag.Parse()
	if *path == "" {
		log.Fatal("usage: scanhead-replay -in <capture.pcap>")
	}

	log.Printf("scanhead-replay %s (%s)", version.Version, version.GitSHA)

	handle, err := pcap.OpenOffline(*path)
	if err != nil {
		log.Fatalf("open %s: %v", *path, err)
	}
	defer handle.Close()

	counts := make(map[string]int)
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		d, err := wire.DecodeAny(udp.Payload)
		if err != nil {
			continue
		}
		counts[d.Kind]++
		ts := packet.Metadata().Timestamp
		log.Printf("[%s] %s:%d -> %s:%d %s %s",
			ts.Format("15:04:05.000000"), ipOf(packet), udp.SrcPort, dstOf(packet), udp.DstPort, d.Kind, d.Summary)
	}

	log.Printf("replay complete:")
	for kind, n := range counts {
		log.Printf("  %-16s %d", kind, n)
	}
}

func ipOf(packet gopacket.Packet) string {
	if l := packet.NetworkLayer(); l != nil {
		src, _ := l.NetworkFlow().Endpoints()
		return src.String()
	}
	return "?"
}

func dstOf(packet gopacket.Packet) string {
	if l := packet.NetworkLayer(); l != nil {
		_, dst := l.NetworkFlow().Endpoints()
		return dst.String()
	}
	return "?"
}
