package main

import (
	"context"
	"flag"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCLIConfig(t *testing.T) {
	tests := []struct {
		name        string
		config      *CLIConfig
		wantErr     bool
		errContains string
	}{
		{
			name: "valid explicit stream",
			config: &CLIConfig{
				listenAddr: ":5004",
				mediaSSRC:  1111,
				rtxSSRC:    2222,
				mediaSet:   true,
				rtxSet:     true,
				apt:        "97:96",
				logLevel:   "info",
			},
			wantErr: false,
		},
		{
			name: "valid sdp stream",
			config: &CLIConfig{
				pcapFile: "call.pcap",
				sdpFile:  "offer.sdp",
				logLevel: "debug",
			},
			wantErr: false,
		},
		{
			name: "no input",
			config: &CLIConfig{
				mediaSSRC: 1, rtxSSRC: 2, mediaSet: true, rtxSet: true, logLevel: "info",
			},
			wantErr:     true,
			errContains: "exactly one of -listen or -pcap",
		},
		{
			name: "both inputs",
			config: &CLIConfig{
				listenAddr: ":5004", pcapFile: "x.pcap", mediaSSRC: 1, rtxSSRC: 2, mediaSet: true, rtxSet: true, logLevel: "info",
			},
			wantErr:     true,
			errContains: "exactly one of -listen or -pcap",
		},
		{
			name: "port over 65535",
			config: &CLIConfig{
				pcapFile: "x.pcap", port: 70000, mediaSSRC: 1, rtxSSRC: 2, mediaSet: true, rtxSet: true, logLevel: "info",
			},
			wantErr:     true,
			errContains: "invalid port",
		},
		{
			name: "sdp combined with explicit stream",
			config: &CLIConfig{
				listenAddr: ":5004", sdpFile: "offer.sdp", mediaSSRC: 1, mediaSet: true, logLevel: "info",
			},
			wantErr:     true,
			errContains: "cannot be combined",
		},
		{
			name: "missing rtx ssrc",
			config: &CLIConfig{
				listenAddr: ":5004", mediaSSRC: 1, mediaSet: true, logLevel: "info",
			},
			wantErr:     true,
			errContains: "required without -sdp",
		},
		{
			name: "zero ssrc is a valid value",
			config: &CLIConfig{
				listenAddr: ":5004", mediaSSRC: 0, rtxSSRC: 2, mediaSet: true, rtxSet: true, logLevel: "info",
			},
			wantErr: false,
		},
		{
			name: "sdp combined with zero media ssrc",
			config: &CLIConfig{
				listenAddr: ":5004", sdpFile: "offer.sdp", mediaSet: true, logLevel: "info",
			},
			wantErr:     true,
			errContains: "cannot be combined",
		},
		{
			name: "bad apt",
			config: &CLIConfig{
				listenAddr: ":5004", mediaSSRC: 1, rtxSSRC: 2, mediaSet: true, rtxSet: true, apt: "97-96", logLevel: "info",
			},
			wantErr:     true,
			errContains: "want rtx:media",
		},
		{
			name: "bad log level",
			config: &CLIConfig{
				listenAddr: ":5004", mediaSSRC: 1, rtxSSRC: 2, mediaSet: true, rtxSet: true, logLevel: "loud",
			},
			wantErr:     true,
			errContains: "invalid log level",
		},
		{
			name: "negative report interval",
			config: &CLIConfig{
				listenAddr: ":5004", mediaSSRC: 1, rtxSSRC: 2, mediaSet: true, rtxSet: true, logLevel: "info", reportEvery: -time.Second,
			},
			wantErr:     true,
			errContains: "invalid report interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCLIConfig(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseCLIFlags(t *testing.T) {
	fs := flag.NewFlagSet("rtxrecv", flag.ContinueOnError)
	config, err := parseCLIFlags(fs, []string{
		"-pcap", "call.pcap", "-port", "5004", "-media-ssrc", "1111", "-rtx-ssrc", "2222", "-apt", "97:96,99:98",
		"-report-interval", "5s",
	})
	require.NoError(t, err)

	assert.Equal(t, "call.pcap", config.pcapFile)
	assert.Equal(t, uint(5004), config.port)
	assert.Equal(t, uint(1111), config.mediaSSRC)
	assert.Equal(t, uint(2222), config.rtxSSRC)
	assert.Equal(t, "97:96,99:98", config.apt)
	assert.Equal(t, "info", config.logLevel)
	assert.Equal(t, 5*time.Second, config.reportEvery)
	assert.True(t, config.mediaSet)
	assert.True(t, config.rtxSet)
}

func TestParseCLIFlags_ZeroSSRC(t *testing.T) {
	fs := flag.NewFlagSet("rtxrecv", flag.ContinueOnError)
	config, err := parseCLIFlags(fs, []string{"-listen", ":5004", "-media-ssrc", "0", "-rtx-ssrc", "7"})
	require.NoError(t, err)

	assert.True(t, config.mediaSet)
	assert.Equal(t, uint(0), config.mediaSSRC)
	assert.NoError(t, validateCLIConfig(config))

	streams, err := loadStreamConfigs(config)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, uint32(0), streams[0].MediaSSRC)
	assert.Equal(t, uint32(7), streams[0].RTXSSRC)

	fs = flag.NewFlagSet("rtxrecv", flag.ContinueOnError)
	config, err = parseCLIFlags(fs, []string{"-listen", ":5004", "-rtx-ssrc", "7"})
	require.NoError(t, err)
	assert.False(t, config.mediaSet)
	assert.ErrorContains(t, validateCLIConfig(config), "required without -sdp")
}

func TestParseAssociations(t *testing.T) {
	tests := []struct {
		input   string
		want    map[uint8]uint8
		wantErr bool
	}{
		{input: "", want: map[uint8]uint8{}},
		{input: "97:96", want: map[uint8]uint8{97: 96}},
		{input: "97:96, 99:98", want: map[uint8]uint8{97: 96, 99: 98}},
		{input: "97", wantErr: true},
		{input: "128:96", wantErr: true},
		{input: "97:300", wantErr: true},
		{input: "97:96,97:98", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseAssociations(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadStreamConfigs_FromSDP(t *testing.T) {
	dir := t.TempDir()
	sdpPath := filepath.Join(dir, "offer.sdp")
	offer := "v=0\r\n" +
		"o=- 1 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 96 97\r\n" +
		"a=mid:v\r\n" +
		"a=rtpmap:96 VP8/90000\r\n" +
		"a=rtpmap:97 rtx/90000\r\n" +
		"a=fmtp:97 apt=96\r\n" +
		"a=ssrc-group:FID 1111 2222\r\n"
	require.NoError(t, os.WriteFile(sdpPath, []byte(offer), 0o600))

	streams, err := loadStreamConfigs(&CLIConfig{sdpFile: sdpPath})
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, uint32(1111), streams[0].MediaSSRC)
	assert.Equal(t, uint32(2222), streams[0].RTXSSRC)
	assert.Equal(t, map[uint8]uint8{97: 96}, streams[0].PayloadTypes)

	_, err = loadStreamConfigs(&CLIConfig{sdpFile: filepath.Join(dir, "missing.sdp")})
	assert.Error(t, err)
}

// writeCapture writes RTP packets as UDP datagrams to dstPort in a pcap file.
func writeCapture(t *testing.T, path string, dstPort uint16, packets []*pionrtp.Packet) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	for i, p := range packets {
		payload, err := p.Marshal()
		require.NoError(t, err)

		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(192, 168, 1, 10),
			DstIP:    net.IPv4(192, 168, 1, 20),
		}
		udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPort)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))

		data := buf.Bytes()
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)*int64(time.Millisecond)),
			CaptureLength: len(data),
			Length:        len(data),
		}, data))
	}
}

func TestRun_ReplaysCaptureWithRecovery(t *testing.T) {
	dir := t.TempDir()
	capturePath := filepath.Join(dir, "call.pcap")

	media := func(seq uint16) *pionrtp.Packet {
		return &pionrtp.Packet{
			Header:  pionrtp.Header{Version: 2, PayloadType: 96, SequenceNumber: seq, Timestamp: uint32(seq) * 3000, SSRC: 1111},
			Payload: []byte{0x01, 0x02},
		}
	}
	rtx := func(seq, osn uint16, pt uint8) *pionrtp.Packet {
		return &pionrtp.Packet{
			Header:  pionrtp.Header{Version: 2, PayloadType: pt, SequenceNumber: seq, Timestamp: uint32(osn) * 3000, SSRC: 2222},
			Payload: []byte{byte(osn >> 8), byte(osn), 0x01, 0x02},
		}
	}

	writeCapture(t, capturePath, 5004, []*pionrtp.Packet{
		media(1),
		media(3),
		rtx(100, 2, 97),
		rtx(101, 4, 120),
		media(4),
	})

	config := &CLIConfig{
		pcapFile:    capturePath,
		port:        5004,
		mediaSSRC:   1111,
		rtxSSRC:     2222,
		mediaSet:    true,
		rtxSet:      true,
		apt:         "97:96",
		logLevel:    "info",
		reportEvery: time.Hour,
	}
	require.NoError(t, validateCLIConfig(config))

	integration, err := run(context.Background(), config)
	require.NoError(t, err)
	require.NotNil(t, integration)
	defer integration.Close()

	session, ok := integration.GetSession(1111)
	require.True(t, ok)

	stats := session.GetStatistics()
	assert.Equal(t, uint64(3), stats.MediaPackets)
	assert.Equal(t, uint64(1), stats.RecoveredPackets)
	assert.Equal(t, uint64(2), stats.RTX.Received)
	assert.Equal(t, uint64(1), stats.RTX.DroppedUnknownPayloadType)
}
