package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

var (
	LayerTypeDSR = gopacket.RegisterLayerType(
		2048,
		gopacket.LayerTypeMetadata{
			Name:    "DSR",
			Decoder: gopacket.DecodeFunc(decodeDSR),
		},
	)
	LayerClassDSR gopacket.LayerClass = LayerTypeDSR
)

// DSR is the fixed DSR header followed by its raw options.
type DSR struct {
	layers.BaseLayer
	NextHeader  uint8
	Source      [4]byte
	Destination [4]byte
	Options     []byte
}

func (d *DSR) LayerType() gopacket.LayerType {
	return LayerTypeDSR
}

func (d *DSR) CanDecode() gopacket.LayerClass {
	return LayerClassDSR
}

func (d *DSR) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypePayload
}

// DecodeFromBytes implements the gopacket.DecodingLayer.DecodeFromBytes method.
func (d *DSR) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < FixedHeaderLen {
		df.SetTruncated()
		return fmt.Errorf("%w: DSR header of %d bytes", ErrTruncated, len(data))
	}
	d.NextHeader = data[0]
	optLen := int(binary.BigEndian.Uint16(data[2:4]))
	copy(d.Source[:], data[4:8])
	copy(d.Destination[:], data[8:12])
	end := FixedHeaderLen + optLen
	if end > len(data) {
		df.SetTruncated()
		return fmt.Errorf("%w: options length %d exceeds packet of %d bytes", ErrTruncated, optLen, len(data)-FixedHeaderLen)
	}
	d.Options = data[FixedHeaderLen:end]
	d.BaseLayer = layers.BaseLayer{Contents: data[:end], Payload: data[end:]}
	return nil
}

func (d *DSR) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if len(d.Options) > 0xffff {
		return fmt.Errorf("%w: options length %d", ErrMalformed, len(d.Options))
	}
	bytes, err := b.PrependBytes(FixedHeaderLen + len(d.Options))
	if err != nil {
		return err
	}
	bytes[0] = d.NextHeader
	bytes[1] = 0
	binary.BigEndian.PutUint16(bytes[2:4], uint16(len(d.Options)))
	copy(bytes[4:8], d.Source[:])
	copy(bytes[8:12], d.Destination[:])
	copy(bytes[FixedHeaderLen:], d.Options)
	return nil
}

func decodeDSR(data []byte, pb gopacket.PacketBuilder) error {
	d := &DSR{}
	err := d.DecodeFromBytes(data, pb)
	pb.AddLayer(d)
	if err != nil {
		return err
	}
	return pb.NextDecoder(gopacket.LayerTypePayload)
}
