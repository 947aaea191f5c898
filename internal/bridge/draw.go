package bridge

import (
	"strconv"
	"strings"
)

// Luminance 计算打包 24 位颜色的亮度（0.299R + 0.587G + 0.114B）。
func Luminance(rgb uint32) float64 {
	r := float64((rgb >> 16) & 0xff)
	g := float64((rgb >> 8) & 0xff)
	b := float64(rgb & 0xff)
	return r*0.299 + g*0.587 + b*0.114
}

// Glyph 将平均亮度量化为字符：超过第 i 个阈值取 Ramp[i]，全部不超过取最后一个。
func (c Config) Glyph(avg float64) byte {
	for i, th := range c.Thresholds {
		if avg > th {
			return c.Ramp[i]
		}
	}
	return c.Ramp[len(c.Ramp)-1]
}

// Downsample 把一帧像素缩为 Rows 行字符串；每个字符取 Block×Block 像素的平均亮度。
// 帧长度不足时缺失像素按黑色计。
func (c Config) Downsample(frame []uint32) []string {
	rows := make([]string, c.Rows)
	n := float64(c.Block * c.Block)
	var sb strings.Builder
	for row := 0; row < c.Rows; row++ {
		sb.Reset()
		sb.Grow(c.Cols)
		for col := 0; col < c.Cols; col++ {
			y0, x0 := row*c.Block, col*c.Block
			sum := 0.0
			for dy := 0; dy < c.Block; dy++ {
				base := (y0+dy)*c.SrcWidth + x0
				for dx := 0; dx < c.Block; dx++ {
					if i := base + dx; i < len(frame) {
						sum += Luminance(frame[i])
					}
				}
			}
			sb.WriteByte(c.Glyph(sum / n))
		}
		rows[row] = sb.String()
	}
	return rows
}

// 测试图案横幅。
const (
	BannerTitle = "  NES PDF TEST - click Run  "
	bannerStep  = 4
)

// TestPattern 生成激活前的测试图案：'#' 边框、中部两行横幅，其余为稀疏网格点。
func (c Config) TestPattern() []string {
	rows := make([]string, c.Rows)
	mid := c.Rows/2 - 1
	sub := "  (screen = " + c.CellPrefix + "0.." + strconv.Itoa(c.Rows-1) + ")  "
	var sb strings.Builder
	for row := 0; row < c.Rows; row++ {
		sb.Reset()
		if row == 0 || row == c.Rows-1 {
			rows[row] = strings.Repeat("#", c.Cols)
			continue
		}
		sb.WriteByte('#')
		for col := 1; col < c.Cols-1; col++ {
			switch {
			case row == mid:
				sb.WriteByte(BannerTitle[((col-1)/bannerStep)%len(BannerTitle)])
			case row == mid+1:
				sb.WriteByte(sub[((col-1)/bannerStep)%len(sub)])
			case row%5 == 0 || col%10 == 0:
				sb.WriteByte('.')
			default:
				sb.WriteByte(' ')
			}
		}
		if c.Cols > 1 {
			sb.WriteByte('#')
		}
		rows[row] = sb.String()
	}
	return rows
}
