package messaging

// Template 通知类型对应的 WhatsApp 模板及正文参数顺序
type Template struct {
	Name   string
	Params []string // payload 中的键，按模板占位符顺序
}

var templates = map[string]Template{
	"low_stock": {
		Name:   "caisse_low_stock",
		Params: []string{"entity", "product", "quantity", "min_quantity"},
	},
	"auto_order": {
		Name:   "caisse_auto_order",
		Params: []string{"entity", "order_number", "product", "quantity", "supplier"},
	},
	"cash_variance": {
		Name:   "caisse_cash_variance",
		Params: []string{"entity", "cashier", "variance", "level"},
	},
	"registration": {
		Name:   "caisse_registration_approved",
		Params: []string{"contact", "entity", "username"},
	},
	"stale_session": {
		Name:   "caisse_stale_session",
		Params: []string{"entity", "cashier", "hours"},
	},
	"invoice": {
		Name:   "caisse_invoice_receipt",
		Params: []string{"customer", "number", "total"},
	},
}

// SelectTemplate 根据通知类型选择模板并按顺序填充参数，缺失的参数以 "-" 占位
// 没有对应模板的类型（如自定义消息）返回 false，调用方按纯文本发送
func SelectTemplate(notificationType string, payload map[string]string) (string, []string, bool) {
	tpl, ok := templates[notificationType]
	if !ok {
		return "", nil, false
	}

	params := make([]string, len(tpl.Params))
	for i, key := range tpl.Params {
		v := payload[key]
		if v == "" {
			v = "-"
		}
		params[i] = v
	}
	return tpl.Name, params, true
}
