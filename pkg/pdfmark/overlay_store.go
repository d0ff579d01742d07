package pdfmark

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// OverlaySource 提供每页的水印列表，供合成器只读访问
type OverlaySource interface {
	TotalPages() int
	Placements(page int) []PlacedWatermark
}

// PageState 单页可序列化状态；切片顺序即绘制顺序，后面的在上层
type PageState struct {
	Page       int               `yaml:"page"`
	Placements []PlacedWatermark `yaml:"placements"`
}

// Empty 页面没有任何水印
func (s PageState) Empty() bool {
	return len(s.Placements) == 0
}

// PageOverlayStore 按页号保存水印
//
// 同一时刻只有一个活动页，其编辑面 (surface) 独立于已保存的条目；
// 离开页面时 Snapshot 把编辑面写回条目，进入页面时 Restore 从条目载入编辑面。
// 没有条目的页面视为空页。
type PageOverlayStore struct {
	mu         sync.RWMutex
	totalPages int
	entries    map[int][]PlacedWatermark
	active     int
	surface    []PlacedWatermark
}

// NewPageOverlayStore 创建覆盖 1..totalPages 的存储
func NewPageOverlayStore(totalPages int) *PageOverlayStore {
	if totalPages < 0 {
		totalPages = 0
	}
	return &PageOverlayStore{
		totalPages: totalPages,
		entries:    make(map[int][]PlacedWatermark),
	}
}

// TotalPages 页数
func (s *PageOverlayStore) TotalPages() int {
	return s.totalPages
}

// ActivePage 当前活动页，0 表示没有
func (s *PageOverlayStore) ActivePage() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *PageOverlayStore) checkPage(page int) error {
	if page < 1 || page > s.totalPages {
		return fmt.Errorf("%w: %d (total pages: %d)", ErrPageOutOfRange, page, s.totalPages)
	}
	return nil
}

// flushLocked 把活动页的编辑面写回条目
// 从未写过且编辑面为空的页面保持 Empty，不创建条目
func (s *PageOverlayStore) flushLocked() {
	if s.active == 0 {
		return
	}
	if _, ok := s.entries[s.active]; !ok && len(s.surface) == 0 {
		return
	}
	s.entries[s.active] = clonePlacements(s.surface)
}

// Snapshot 捕获某页当前的水印；对活动页会先把编辑面写回
func (s *PageOverlayStore) Snapshot(page int) (PageState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPage(page); err != nil {
		return PageState{}, err
	}
	if page == s.active {
		s.flushLocked()
	}
	return PageState{Page: page, Placements: clonePlacements(s.entries[page])}, nil
}

// Restore 进入某页：先保存正在离开的活动页，再载入该页的状态
// 从未保存过的页面返回空状态
func (s *PageOverlayStore) Restore(page int) (PageState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPage(page); err != nil {
		return PageState{}, err
	}
	s.flushLocked()

	s.active = page
	s.surface = clonePlacements(s.entries[page])
	Debug("overlay page restored", "page", page, "placements", len(s.surface))
	return PageState{Page: page, Placements: clonePlacements(s.surface)}, nil
}

// Surface 返回活动页编辑面的副本
func (s *PageOverlayStore) Surface() []PlacedWatermark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePlacements(s.surface)
}

var errNoActivePage = errors.New("no active page")

// Add 在活动页编辑面末尾（最上层）加入一个水印
func (s *PageOverlayStore) Add(pw PlacedWatermark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == 0 {
		return errNoActivePage
	}
	s.surface = append(s.surface, pw)
	return nil
}

// Update 替换活动页上第 index 个水印；只有可编辑的水印允许修改
func (s *PageOverlayStore) Update(index int, pw PlacedWatermark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == 0 {
		return errNoActivePage
	}
	if index < 0 || index >= len(s.surface) {
		return fmt.Errorf("placement index %d out of range [0,%d)", index, len(s.surface))
	}
	if !s.surface[index].Editable {
		return fmt.Errorf("placement %d on page %d is not editable", index, s.active)
	}
	s.surface[index] = pw
	return nil
}

// Remove 删除活动页上第 index 个可选中的水印
func (s *PageOverlayStore) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == 0 {
		return errNoActivePage
	}
	if index < 0 || index >= len(s.surface) {
		return fmt.Errorf("placement index %d out of range [0,%d)", index, len(s.surface))
	}
	if !s.surface[index].Selectable {
		return fmt.Errorf("placement %d on page %d is not selectable", index, s.active)
	}
	s.surface = append(s.surface[:index], s.surface[index+1:]...)
	return nil
}

// ApplyToAllPages 把描述符按模式展开到每一页，追加在已有水印之后
// 所有页面的展开结果先计算完成再一次性写入，出错时不写入任何页面
func (s *PageOverlayStore) ApplyToAllPages(d WatermarkDescriptor, rc *RenderContext) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if rc.TotalPages != s.totalPages {
		return fmt.Errorf("render context has %d pages, overlay store has %d", rc.TotalPages, s.totalPages)
	}

	expanded := make(map[int][]PlacedWatermark, s.totalPages)
	for page := 1; page <= s.totalPages; page++ {
		g, err := rc.Page(page)
		if err != nil {
			return err
		}
		expanded[page] = Expand(d, g)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked()
	for page, pws := range expanded {
		s.entries[page] = append(s.entries[page], pws...)
	}
	if s.active != 0 {
		s.surface = clonePlacements(s.entries[s.active])
	}
	Debug("pattern applied to all pages", "pattern", d.Pattern.String(), "pages", s.totalPages)
	return nil
}

// ClearAll 清空所有页面（包括活动页的编辑面）
func (s *PageOverlayStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[int][]PlacedWatermark)
	s.surface = nil
}

// Placements 返回某页的水印：活动页取编辑面，其余取最后一次快照
func (s *PageOverlayStore) Placements(page int) []PlacedWatermark {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if page == s.active && s.active != 0 {
		return clonePlacements(s.surface)
	}
	return clonePlacements(s.entries[page])
}

// Freeze 生成只读快照，导出期间的后续编辑不会影响它
func (s *PageOverlayStore) Freeze() *OverlaySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked()
	snap := &OverlaySnapshot{
		totalPages: s.totalPages,
		pages:      make(map[int][]PlacedWatermark, len(s.entries)),
	}
	for page, pws := range s.entries {
		snap.pages[page] = clonePlacements(pws)
	}
	return snap
}

// storeFile 序列化格式
type storeFile struct {
	TotalPages int         `yaml:"total_pages"`
	ActivePage int         `yaml:"active_page,omitempty"`
	Pages      []PageState `yaml:"pages"`
}

// SaveState 以 YAML 写出全部页面状态
func (s *PageOverlayStore) SaveState(w io.Writer) error {
	snap := s.Freeze()
	f := storeFile{TotalPages: snap.totalPages, ActivePage: s.ActivePage()}
	for _, page := range snap.sortedPages() {
		f.Pages = append(f.Pages, PageState{Page: page, Placements: snap.pages[page]})
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(&f); err != nil {
		return fmt.Errorf("failed to encode overlay state: %w", err)
	}
	return nil
}

// LoadState 读取 SaveState 写出的状态，替换当前全部内容
func (s *PageOverlayStore) LoadState(r io.Reader) error {
	var f storeFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return fmt.Errorf("failed to decode overlay state: %w", err)
	}
	if f.TotalPages != s.totalPages {
		return fmt.Errorf("state has %d pages, document has %d", f.TotalPages, s.totalPages)
	}

	entries := make(map[int][]PlacedWatermark, len(f.Pages))
	for _, ps := range f.Pages {
		if err := s.checkPage(ps.Page); err != nil {
			return err
		}
		entries[ps.Page] = clonePlacements(ps.Placements)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.active = 0
	s.surface = nil
	if f.ActivePage >= 1 && f.ActivePage <= s.totalPages {
		s.active = f.ActivePage
		s.surface = clonePlacements(entries[f.ActivePage])
	}
	return nil
}

// OverlaySnapshot 某一时刻全部页面水印的只读副本
type OverlaySnapshot struct {
	totalPages int
	pages      map[int][]PlacedWatermark
}

// TotalPages 页数
func (o *OverlaySnapshot) TotalPages() int {
	return o.totalPages
}

// Placements 返回某页水印的副本
func (o *OverlaySnapshot) Placements(page int) []PlacedWatermark {
	return clonePlacements(o.pages[page])
}

func (o *OverlaySnapshot) sortedPages() []int {
	pages := make([]int, 0, len(o.pages))
	for p := range o.pages {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

func clonePlacements(in []PlacedWatermark) []PlacedWatermark {
	if len(in) == 0 {
		return []PlacedWatermark{}
	}
	out := make([]PlacedWatermark, len(in))
	copy(out, in)
	return out
}
