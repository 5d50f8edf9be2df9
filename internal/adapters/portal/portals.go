package portal

import "github.com/scottlangford2/research-scraper/internal/rfp"

// Portal is one public solicitation listing page.
type Portal struct {
	Region       rfp.Region `mapstructure:"region"`
	Label        string     `mapstructure:"label"`
	URL          string     `mapstructure:"url"`
	WaitSelector string     `mapstructure:"wait_selector"`
}

// DefaultPortals are state eProcurement listing pages that need no login.
var DefaultPortals = []Portal{
	{Region: "CA", Label: "California Cal eProcure", URL: "https://caleprocure.ca.gov/pages/Events-BS3/event-search.aspx"},
	{Region: "CT", Label: "Connecticut CTsource", URL: "https://biznet.ct.gov/SCP_Search/BidResults.aspx"},
	{Region: "IN", Label: "Indiana IDOA", URL: "https://www.in.gov/idoa/procurement/current-business-opportunities/"},
	{Region: "KS", Label: "Kansas Procurement", URL: "https://admin.ks.gov/offices/procurement-and-contracts/bid-solicitations"},
	{Region: "MN", Label: "Minnesota Procurement", URL: "https://mn.gov/admin/government/procurement-contracting/open-solicitations/"},
	{Region: "ND", Label: "North Dakota OMB", URL: "https://www.omb.nd.gov/doing-business-state/current-bid-opportunities"},
	{Region: "TN", Label: "Tennessee Edison", URL: "https://tn.gov/generalservices/procurement/central-procurement-office--cpo-/opportunities.html"},
	{Region: "WI", Label: "Wisconsin VendorNet", URL: "https://vendornet.wi.gov/Bids.aspx"},
	{Region: "KY", Label: "Kentucky eProcurement", URL: "https://finance.ky.gov/eProcurement/Pages/default.aspx"},
	{Region: "ME", Label: "Maine Purchases", URL: "https://www.maine.gov/dafs/bbm/procurementservices/vendors/current-bids"},
	{Region: "MI", Label: "Michigan SIGMA", URL: "https://www.michigan.gov/dtmb/procurement/contractconnect"},
	{Region: "WV", Label: "West Virginia Purchasing", URL: "https://www.state.wv.us/admin/purchase/Bids/default.html"},
	{Region: "FL", Label: "Florida MFMP", URL: "https://vendor.myfloridamarketplace.com/search/bids/posted"},
	{Region: "LA", Label: "Louisiana LaPAC", URL: "https://wwwcfprd.doa.louisiana.gov/osp/lapac/pubMain.cfm"},
	{Region: "SC", Label: "South Carolina SCPRO", URL: "https://procurement.sc.gov/solicitations/current"},
	{Region: "AL", Label: "Alabama Purchasing", URL: "https://procurement.alabama.gov/current-bid-opportunities/"},
	{Region: "AZ", Label: "Arizona APP", URL: "https://app.az.gov/page.aspx/en/rfx/rfx_browse/open"},
	{Region: "MD", Label: "Maryland eMMa", URL: "https://emma.maryland.gov/page.aspx/en/rfx/rfx_browse/open"},
	{Region: "OH", Label: "Ohio OhioBuys", URL: "https://ohiobuys.ohio.gov/page.aspx/en/rfx/rfx_browse/open"},
	{Region: "VT", Label: "Vermont Procurement", URL: "https://bgs.vermont.gov/purchasing/bids"},
	{Region: "AK", Label: "Alaska DOT Procurement", URL: "https://dot.alaska.gov/procurement/awp/bids.html"},
	{Region: "CO", Label: "Colorado OSC Solicitations", URL: "https://osc.colorado.gov/spco/solicitations"},
	{Region: "HI", Label: "Hawaii SPO", URL: "https://hands.ehawaii.gov/hands/opportunities"},
	{Region: "MS", Label: "Mississippi MAGIC", URL: "https://www.ms.gov/dfa/contract_bid_search"},
	{Region: "MO", Label: "Missouri MissouriBUYS", URL: "https://missouribuys.mo.gov/search/publicSolicitation"},
	{Region: "NE", Label: "Nebraska Materiel", URL: "https://das.nebraska.gov/materiel/bidopps.html"},
	{Region: "NH", Label: "New Hampshire Procurement", URL: "https://das.nh.gov/purchasing/bidscontracts/bids.aspx"},
	{Region: "NY", Label: "New York OGS Bids", URL: "https://ogs.ny.gov/procurement/bid-opportunities"},
	{Region: "RI", Label: "Rhode Island Purchasing", URL: "https://purchasing.ri.gov/RIVIP/ExternalBids.aspx"},
	{Region: "SD", Label: "South Dakota Procurement", URL: "https://www.sd.gov/bhra"},
	{Region: "VA", Label: "Virginia eVA", URL: "https://mvendor.cgieva.com/Vendor/public/AllOpportunities/"},
	{Region: "WA", Label: "Washington DES Contracts", URL: "https://apps.des.wa.gov/DESContracts/"},
	{Region: "WY", Label: "Wyoming Procurement", URL: "https://ai.wyo.gov/divisions/general-services/procurement/bid-opportunities"},
	{Region: "DE", Label: "Delaware MyMarketplace", URL: "https://mymarketplace.delaware.gov/bids"},
	{Region: "ID", Label: "Idaho Purchasing", URL: "https://purchasing.idaho.gov/bid-opportunities/"},
	{Region: "OK", Label: "Oklahoma OMES", URL: "https://oklahoma.gov/omes/services/purchasing/solicitations.html"},
}
