package encoder

import (
	"encoding/binary"

	"github.com/optipng-go/optipng/internal/pngimage"
)

func encodeIHDR(img *pngimage.Image) []byte {
	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:4], img.Width)
	binary.BigEndian.PutUint32(data[4:8], img.Height)
	data[8] = img.BitDepth
	data[9] = img.ColorType.IHDRCode()
	data[10] = 0 // compression method: deflate
	data[11] = 0 // filter method: adaptive
	data[12] = byte(img.Interlace)
	return data
}

func encodePLTE(img *pngimage.Image) []byte {
	data := make([]byte, len(img.Palette)*3)
	for i, c := range img.Palette {
		data[i*3] = c.R
		data[i*3+1] = c.G
		data[i*3+2] = c.B
	}
	return data
}

func encodeTRNS(img *pngimage.Image) []byte {
	switch img.Trans.Kind {
	case pngimage.TransPalette:
		return append([]byte(nil), img.Trans.PaletteAlpha...)
	case pngimage.TransColorKey:
		if img.ColorType == pngimage.Gray {
			data := make([]byte, 2)
			binary.BigEndian.PutUint16(data, img.Trans.Key[0])
			return data
		}
		data := make([]byte, 6)
		binary.BigEndian.PutUint16(data[0:2], img.Trans.Key[0])
		binary.BigEndian.PutUint16(data[2:4], img.Trans.Key[1])
		binary.BigEndian.PutUint16(data[4:6], img.Trans.Key[2])
		return data
	default:
		return nil
	}
}

func encodeBKGD(img *pngimage.Image) []byte {
	if !img.BKGD.Present {
		return nil
	}
	switch img.ColorType {
	case pngimage.PaletteColor:
		return []byte{byte(img.BKGD.PaletteIndex)}
	case pngimage.Gray, pngimage.GrayAlpha:
		data := make([]byte, 2)
		binary.BigEndian.PutUint16(data, img.BKGD.Gray)
		return data
	default:
		data := make([]byte, 6)
		binary.BigEndian.PutUint16(data[0:2], img.BKGD.Red)
		binary.BigEndian.PutUint16(data[2:4], img.BKGD.Green)
		binary.BigEndian.PutUint16(data[4:6], img.BKGD.Blue)
		return data
	}
}

func encodeHIST(img *pngimage.Image) []byte {
	if img.HIST == nil {
		return nil
	}
	data := make([]byte, len(img.HIST)*2)
	for i, v := range img.HIST {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	return data
}

func encodeSBIT(img *pngimage.Image) []byte {
	if !img.SBIT.Present {
		return nil
	}
	switch img.ColorType {
	case pngimage.Gray:
		return []byte{img.SBIT.Gray}
	case pngimage.GrayAlpha:
		return []byte{img.SBIT.Gray, img.SBIT.Alpha}
	case pngimage.RGBColor:
		return []byte{img.SBIT.Red, img.SBIT.Green, img.SBIT.Blue}
	case pngimage.RGBAlpha:
		return []byte{img.SBIT.Red, img.SBIT.Green, img.SBIT.Blue, img.SBIT.Alpha}
	case pngimage.PaletteColor:
		return []byte{img.SBIT.Red, img.SBIT.Green, img.SBIT.Blue}
	default:
		return nil
	}
}
