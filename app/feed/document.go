package feed

import (
	"strings"

	"github.com/beevik/etree"
)

const xmlDeclaration = `version="1.0" encoding="UTF-8"`

// Document is a parsed feed whose tree is edited in place.
type Document struct {
	doc     *etree.Document
	channel *etree.Element
	Items   []*Item
}

// Item is one <item> of the channel, in feed order.
type Item struct {
	Index      int
	Link       string
	HasContent bool
	element    *etree.Element
}

// HasEnclosure reports whether the item already carries an <enclosure>.
func (i *Item) HasEnclosure() bool {
	return len(i.Enclosures()) > 0
}

// Enclosures returns the url attribute of every <enclosure> child.
func (i *Item) Enclosures() []string {
	var urls []string
	for _, el := range childElements(i.element, "enclosure") {
		urls = append(urls, el.SelectAttrValue("url", ""))
	}
	return urls
}

// AttachEnclosure appends an audio enclosure. Repeated calls append repeatedly.
func (i *Item) AttachEnclosure(url string) {
	enclosure := i.element.CreateElement("enclosure")
	enclosure.CreateAttr("url", url)
	enclosure.CreateAttr("type", EnclosureType)
}

// ImageURLs returns the text of every /rss/channel/image/url element.
func (d *Document) ImageURLs() []string {
	var urls []string
	for _, image := range childElements(d.channel, "image") {
		for _, u := range childElements(image, "url") {
			urls = append(urls, u.Text())
		}
	}
	return urls
}

// Bytes serializes the document as UTF-8 with an XML declaration.
func (d *Document) Bytes() ([]byte, error) {
	declared := d.rewriteDeclaration()
	out, err := d.doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	if declared {
		return out, nil
	}
	return append([]byte("<?xml "+xmlDeclaration+"?>\n"), out...), nil
}

// rewriteDeclaration makes an existing declaration match the UTF-8 output,
// since non-UTF-8 input is decoded on read. It reports whether one exists.
func (d *Document) rewriteDeclaration() bool {
	for _, tok := range d.doc.Child {
		if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
			pi.Inst = xmlDeclaration
			return true
		}
	}
	return false
}

// childElements returns direct children with the given local name and no
// namespace, so that e.g. itunes:image is not mistaken for image.
func childElements(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, ch := range el.ChildElements() {
		if ch.Tag == tag && ch.NamespaceURI() == "" {
			out = append(out, ch)
		}
	}
	return out
}

func childText(el *etree.Element, tag string) string {
	children := childElements(el, tag)
	if len(children) == 0 {
		return ""
	}
	return strings.TrimSpace(children[0].Text())
}

func findContentEncoded(el *etree.Element) *etree.Element {
	for _, ch := range el.ChildElements() {
		if ch.Tag == "encoded" && ch.NamespaceURI() == ContentNamespace {
			return ch
		}
		if found := findContentEncoded(ch); found != nil {
			return found
		}
	}
	return nil
}
