package rtp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/sirupsen/logrus"
)

const (
	rtxEncodingName = "rtx"
	fidSemantics    = "FID"
)

// ParseStreamConfigs derives receive stream configurations from a session
// description.
//
// For every media section, payload types declared as "rtx" in an rtpmap
// attribute are associated with the payload type named by the apt
// parameter of their fmtp attribute. Each "ssrc-group:FID <media> <rtx>"
// attribute in the section yields one StreamConfig carrying that
// association. Sections without an FID group are skipped.
//
// This is static configuration loading; the description is not negotiated.
func ParseStreamConfigs(description []byte) ([]StreamConfig, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(description); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSDP, err)
	}

	var configs []StreamConfig
	for i, md := range sd.MediaDescriptions {
		name, ok := md.Attribute("mid")
		if !ok {
			name = strconv.Itoa(i)
		}

		payloadTypes, err := rtxPayloadTypes(md)
		if err != nil {
			return nil, fmt.Errorf("media section %s: %w", name, err)
		}

		groups, err := fidGroups(md)
		if err != nil {
			return nil, fmt.Errorf("media section %s: %w", name, err)
		}
		if len(groups) == 0 {
			logrus.WithFields(logrus.Fields{
				"function": "ParseStreamConfigs",
				"mid":      name,
			}).Debug("Media section has no FID ssrc-group, skipping")
			continue
		}

		for _, g := range groups {
			configs = append(configs, StreamConfig{
				Name:         name,
				MediaSSRC:    g[0],
				RTXSSRC:      g[1],
				PayloadTypes: copyPayloadTypes(payloadTypes),
			})
		}
	}

	return configs, nil
}

// rtxPayloadTypes builds the RTX→media payload type table of one media section.
func rtxPayloadTypes(md *sdp.MediaDescription) (map[uint8]uint8, error) {
	rtx := make(map[uint8]bool)
	apt := make(map[uint8]uint8)

	for _, attr := range md.Attributes {
		switch attr.Key {
		case "rtpmap":
			pt, rest, err := splitPayloadType(attr.Value)
			if err != nil {
				return nil, err
			}
			encoding, _, _ := strings.Cut(rest, "/")
			if strings.EqualFold(encoding, rtxEncodingName) {
				rtx[pt] = true
			}
		case "fmtp":
			pt, rest, err := splitPayloadType(attr.Value)
			if err != nil {
				return nil, err
			}
			for _, param := range strings.Split(rest, ";") {
				key, value, found := strings.Cut(strings.TrimSpace(param), "=")
				if !found || key != "apt" {
					continue
				}
				media, err := parsePayloadType(value)
				if err != nil {
					return nil, fmt.Errorf("apt of payload type %d: %w", pt, err)
				}
				apt[pt] = media
			}
		}
	}

	payloadTypes := make(map[uint8]uint8)
	for pt := range rtx {
		if media, ok := apt[pt]; ok {
			payloadTypes[pt] = media
		}
	}
	return payloadTypes, nil
}

// fidGroups returns the (media, rtx) SSRC pairs of a media section.
func fidGroups(md *sdp.MediaDescription) ([][2]uint32, error) {
	var groups [][2]uint32
	for _, attr := range md.Attributes {
		if attr.Key != "ssrc-group" {
			continue
		}
		fields := strings.Fields(attr.Value)
		if len(fields) == 0 || fields[0] != fidSemantics {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: FID group %q must name two ssrcs", ErrInvalidSDP, attr.Value)
		}
		media, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: media ssrc %q", ErrInvalidSDP, fields[1])
		}
		rtx, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: rtx ssrc %q", ErrInvalidSDP, fields[2])
		}
		groups = append(groups, [2]uint32{uint32(media), uint32(rtx)})
	}
	return groups, nil
}

// splitPayloadType splits "<pt> <rest>" attribute values.
func splitPayloadType(value string) (uint8, string, error) {
	head, rest, _ := strings.Cut(strings.TrimSpace(value), " ")
	pt, err := parsePayloadType(head)
	if err != nil {
		return 0, "", err
	}
	return pt, strings.TrimSpace(rest), nil
}

func parsePayloadType(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil || v > MaxPayloadType {
		return 0, fmt.Errorf("%w: %w %q", ErrInvalidSDP, ErrInvalidPayloadType, s)
	}
	return uint8(v), nil
}

func copyPayloadTypes(m map[uint8]uint8) map[uint8]uint8 {
	out := make(map[uint8]uint8, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
