package export

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter 按语言环境格式化金额（千分位 + 本地小数点）
type Formatter struct {
	printer  *message.Printer
	currency string
}

// NewFormatter 创建格式化器，无法识别的语言回退到法语
func NewFormatter(lang, currency string) *Formatter {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.French
	}
	return &Formatter{printer: message.NewPrinter(tag), currency: currency}
}

// Money 金额，带货币代码
func (f *Formatter) Money(d decimal.Decimal) string {
	s := f.printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
	if f.currency == "" {
		return s
	}
	return s + " " + f.currency
}

// Number 数量
func (f *Formatter) Number(d decimal.Decimal) string {
	places := int32(0)
	if d.Exponent() < 0 {
		places = -d.Exponent()
	}
	if places > 3 {
		places = 3
	}
	return f.printer.Sprintf(fmt.Sprintf("%%.%df", places), d.Round(places).InexactFloat64())
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}
