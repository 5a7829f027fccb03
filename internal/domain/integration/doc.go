// Package integration contains the Integration bounded context.
// This context mirrors commercial records from the Epicor ERP into HubSpot CRM.
//
// Key concepts:
//   - Customer, Quote, Order: typed snapshots of ERP records (read-only)
//   - CompanyProperties, QuoteDealProperties, OrderDealProperties, LineItemProperties:
//     typed CRM property bags produced by the Transformer
//   - StagePolicy: derives deal pipeline stages and decides when a stage may be overwritten
//   - LineID: composite natural key for line items ("Q1001-3", "O2001-1")
//   - SourceClient / CRMClient: ports for the ERP and CRM collaborators
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
