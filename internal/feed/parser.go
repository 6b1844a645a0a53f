package feed

import (
	"encoding/xml"
	"io"
	"strings"
)

// Node 是一个解析完成的 XML 元素。路径不含文档根元素，
// 因此 RSS 的频道标题匹配 Is("channel", "title")。
// 仅 channel/item 及更深层级会保留完整子树，供调用方做字段提取；
// 频道级节点彼此独立产出，解析器不会缓冲整篇文档。
type Node struct {
	Name       string
	Attributes map[string]string

	path     []string
	text     strings.Builder
	children []*Node
}

// Is 判断节点是否位于给定路径。
func (n *Node) Is(path ...string) bool {
	if len(path) != len(n.path) {
		return false
	}
	for i := range path {
		if path[i] != n.path[i] {
			return false
		}
	}
	return true
}

// First 深度优先返回第一个名称匹配的后代节点；不存在返回 nil。
func (n *Node) First(name string) *Node {
	for _, child := range n.children {
		if child.Name == name {
			return child
		}
		if found := child.First(name); found != nil {
			return found
		}
	}
	return nil
}

// InnerText 返回节点直接包含的字符数据。
func (n *Node) InnerText() string {
	return n.text.String()
}

// Attr 返回属性值；缺失时返回空串。
func (n *Node) Attr(key string) string {
	return n.Attributes[key]
}

// Parser 在 XML 流上做单遍、惰性、不可回退的节点迭代。
type Parser struct {
	dec   *xml.Decoder
	stack []*Node
}

// NewParser 包装一个 XML 字节流。解析是宽松模式，容忍常见的脏订阅源。
func NewParser(r io.Reader) *Parser {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	return &Parser{dec: dec}
}

// Next 返回下一个闭合的元素节点；文档结束返回 io.EOF。
// 节点按闭合顺序产出：子节点先于父节点。
func (p *Parser) Next() (*Node, error) {
	for {
		token, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			node := &Node{
				Name:       elementName(t.Name),
				Attributes: make(map[string]string, len(t.Attr)),
			}
			for _, attr := range t.Attr {
				node.Attributes[elementName(attr.Name)] = attr.Value
			}
			// 路径不含根元素。
			if len(p.stack) > 0 {
				parent := p.stack[len(p.stack)-1]
				node.path = append(append([]string(nil), parent.path...), node.Name)
			}
			p.stack = append(p.stack, node)
		case xml.CharData:
			if len(p.stack) > 0 {
				p.stack[len(p.stack)-1].text.Write(t)
			}
		case xml.EndElement:
			if len(p.stack) == 0 {
				continue
			}
			node := p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
			if len(p.stack) == 0 {
				// 根元素闭合，文档结束。
				return nil, io.EOF
			}
			parent := p.stack[len(p.stack)-1]
			// 只为 item 级及更深的父节点保留子树，频道级不累积。
			if len(parent.path) >= 2 {
				parent.children = append(parent.children, node)
			}
			return node, nil
		}
	}
}

// elementName 将带命名空间的名称还原为常见的前缀写法。
// encoding/xml 把命名空间展开成完整 URL，这里按已知词表折叠回
// itunes:/atom: 等习惯前缀，便于路径匹配。
func elementName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	space := strings.ToLower(name.Space)
	switch {
	case strings.Contains(space, "itunes"):
		return "itunes:" + name.Local
	case strings.Contains(space, "atom"):
		return "atom:" + name.Local
	case strings.Contains(space, "content"):
		return "content:" + name.Local
	default:
		return name.Local
	}
}
